// Package insights derives aggregate UX statistics from stored touch
// events. Every computation is a pure function of its input set.
package insights

import (
	"log/slog"
	"math"
	"sort"

	"github.com/touchheat/touchheat/internal/models"
)

// MisTapData is the payload of the mis_tap_rate insight.
type MisTapData struct {
	Rate  int `json:"rate"`
	Count int `json:"count"`
	Total int `json:"total"`
}

// ZoneDistribution holds per-zone tap percentages. Each bucket is rounded
// independently, so the four values need not sum to 100.
type ZoneDistribution struct {
	Left    int `json:"left"`
	Right   int `json:"right"`
	Center  int `json:"center"`
	Unknown int `json:"unknown"`
}

// CTA is one rarely-tapped interactive element.
type CTA struct {
	Selector string  `json:"selector"`
	TapRate  float64 `json:"tapRate"` // percentage, 2 decimal places
}

// CTAReport is the payload of the unreachable_ctas insight.
type CTAReport struct {
	CTAs []CTA `json:"ctas"`
}

// PageScore is one page's thumb-reachability score.
type PageScore struct {
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// PageScores is the payload of the reachability_scores insight.
type PageScores struct {
	Pages []PageScore `json:"pages"`
}

// ComfortData is the payload of the scroll_comfort_score insight.
type ComfortData struct {
	Score int `json:"score"`
}

type insightFn func([]models.TouchEvent) models.Insight

// Compute derives all five insights over the event set. An empty set
// yields an empty slice. Each insight runs isolated: a panic in one is
// logged and skipped without aborting the rest.
func Compute(events []models.TouchEvent) []models.Insight {
	if len(events) == 0 {
		return []models.Insight{}
	}

	fns := []insightFn{
		misTapRate,
		thumbZoneDistribution,
		unreachableCTAs,
		reachabilityScores,
		scrollComfortScore,
	}
	insights := make([]models.Insight, 0, len(fns))
	for _, fn := range fns {
		if insight, ok := safeCompute(fn, events); ok {
			insights = append(insights, insight)
		}
	}
	return insights
}

func safeCompute(fn insightFn, events []models.TouchEvent) (insight models.Insight, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("insight computation panicked", "panic", r)
			ok = false
		}
	}()
	return fn(events), true
}

func misTapRate(events []models.TouchEvent) models.Insight {
	misTaps := 0
	for _, e := range events {
		if e.MisTap {
			misTaps++
		}
	}
	rate := float64(misTaps) / float64(len(events))
	score := roundInt((1 - rate) * 100)
	return models.Insight{
		Type: "mis_tap_rate",
		Data: MisTapData{
			Rate:  roundInt(rate * 100),
			Count: misTaps,
			Total: len(events),
		},
		Score: &score,
	}
}

func thumbZoneDistribution(events []models.TouchEvent) models.Insight {
	counts := map[models.ThumbZone]int{}
	for _, e := range events {
		counts[e.ThumbZone]++
	}
	total := float64(len(events))
	return models.Insight{
		Type: "thumb_zone_distribution",
		Data: ZoneDistribution{
			Left:    roundInt(float64(counts[models.ZoneLeft]) / total * 100),
			Right:   roundInt(float64(counts[models.ZoneRight]) / total * 100),
			Center:  roundInt(float64(counts[models.ZoneCenter]) / total * 100),
			Unknown: roundInt(float64(counts[models.ZoneUnknown]) / total * 100),
		},
	}
}

func unreachableCTAs(events []models.TouchEvent) models.Insight {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range events {
		if e.Selector == nil || *e.Selector == "" {
			continue
		}
		if _, ok := counts[*e.Selector]; !ok {
			order = append(order, *e.Selector)
		}
		counts[*e.Selector]++
	}

	total := float64(len(events))
	ctas := make([]CTA, 0)
	for _, selector := range order {
		tapRate := float64(counts[selector]) / total
		if tapRate < 0.01 {
			ctas = append(ctas, CTA{
				Selector: selector,
				TapRate:  math.Round(tapRate*10000) / 100,
			})
		}
	}
	sort.SliceStable(ctas, func(i, j int) bool { return ctas[i].TapRate < ctas[j].TapRate })
	if len(ctas) > 10 {
		ctas = ctas[:10]
	}
	return models.Insight{Type: "unreachable_ctas", Data: CTAReport{CTAs: ctas}}
}

func reachabilityScores(events []models.TouchEvent) models.Insight {
	type pageStats struct {
		count    int
		distance float64
	}
	stats := make(map[string]*pageStats)
	order := make([]string, 0)
	for _, e := range events {
		s, ok := stats[e.URL]
		if !ok {
			s = &pageStats{}
			stats[e.URL] = s
			order = append(order, e.URL)
		}
		s.count++
		// Distance from the bottom-right corner, the natural resting
		// position of a right thumb, normalized by the viewport diagonal.
		w, h := float64(e.ViewportW), float64(e.ViewportH)
		distance := math.Hypot(float64(e.X)-w, float64(e.Y)-h)
		maxDistance := math.Hypot(w, h)
		if maxDistance > 0 {
			s.distance += distance / maxDistance
		}
	}

	pages := make([]PageScore, 0, len(order))
	for _, u := range order {
		s := stats[u]
		avg := s.distance / float64(s.count)
		pages = append(pages, PageScore{URL: u, Score: roundInt((1 - avg) * 100)})
	}
	return models.Insight{Type: "reachability_scores", Data: PageScores{Pages: pages}}
}

func scrollComfortScore(events []models.TouchEvent) models.Insight {
	center, misTaps := 0, 0
	for _, e := range events {
		if e.ThumbZone == models.ZoneCenter {
			center++
		}
		if e.MisTap {
			misTaps++
		}
	}
	total := float64(len(events))
	centerRate := float64(center) / total
	misTapFrac := float64(misTaps) / total
	score := roundInt((centerRate*0.7 + (1-misTapFrac)*0.3) * 100)
	return models.Insight{
		Type:  "scroll_comfort_score",
		Data:  ComfortData{Score: score},
		Score: &score,
	}
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
