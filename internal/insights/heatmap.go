package insights

import "github.com/touchheat/touchheat/internal/models"

// BucketSize is the heatmap grid cell edge in px.
const BucketSize = 20

// Heatmap is the clustered density response.
type Heatmap struct {
	Points   []models.HeatmapPoint `json:"heatmap"`
	MaxCount int                   `json:"maxCount"`
}

// Cluster buckets events into a fixed 20px grid anchored at each bucket's
// lower-left corner and normalizes counts linearly against the densest
// bucket. Points come out in discovery order.
func Cluster(events []models.TouchEvent) Heatmap {
	type bucket struct{ x, y int }
	counts := make(map[bucket]int)
	order := make([]bucket, 0)
	for _, e := range events {
		b := bucket{
			x: e.X / BucketSize * BucketSize,
			y: e.Y / BucketSize * BucketSize,
		}
		if _, ok := counts[b]; !ok {
			order = append(order, b)
		}
		counts[b]++
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	points := make([]models.HeatmapPoint, 0, len(order))
	for _, b := range order {
		count := counts[b]
		intensity := 0.0
		if maxCount > 0 {
			intensity = float64(count) / float64(maxCount)
		}
		points = append(points, models.HeatmapPoint{
			X: b.x, Y: b.y, Count: count, Intensity: intensity,
		})
	}
	return Heatmap{Points: points, MaxCount: maxCount}
}
