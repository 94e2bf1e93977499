package models

import (
	"fmt"
	"time"
)

// ThumbZone is the horizontal third of the viewport a tap landed in.
type ThumbZone string

const (
	ZoneLeft    ThumbZone = "left"
	ZoneCenter  ThumbZone = "center"
	ZoneRight   ThumbZone = "right"
	ZoneUnknown ThumbZone = "unknown"
)

// ParseThumbZone reports whether s is one of the four valid zones.
func ParseThumbZone(s string) (ThumbZone, bool) {
	switch ThumbZone(s) {
	case ZoneLeft, ZoneCenter, ZoneRight, ZoneUnknown:
		return ThumbZone(s), true
	}
	return "", false
}

// TouchEvent is a single classified tap. The client produces everything
// except TSUTC, which the storage layer stamps at insert time.
type TouchEvent struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	ViewportW int       `json:"viewport_w"`
	ViewportH int       `json:"viewport_h"`
	ThumbZone ThumbZone `json:"thumb_zone"`
	MisTap    bool      `json:"mis_tap"`
	Pressure  *float64  `json:"pressure"` // nullable
	Selector  *string   `json:"selector"` // nullable
	URL       string    `json:"url"`
	TSUTC     int64     `json:"ts,omitempty"` // unix millis, server-assigned
}

// Validate returns a list of violations, empty if the event is well formed.
// The prefix (e.g. "events[3]") is prepended to each violation so batch
// callers can report exact positions.
func (e TouchEvent) Validate(prefix string) []string {
	var violations []string
	if e.X < 0 {
		violations = append(violations, fmt.Sprintf("%s.x: must be non-negative", prefix))
	}
	if e.Y < 0 {
		violations = append(violations, fmt.Sprintf("%s.y: must be non-negative", prefix))
	}
	if e.ViewportW <= 0 {
		violations = append(violations, fmt.Sprintf("%s.viewport_w: must be positive", prefix))
	}
	if e.ViewportH <= 0 {
		violations = append(violations, fmt.Sprintf("%s.viewport_h: must be positive", prefix))
	}
	if _, ok := ParseThumbZone(string(e.ThumbZone)); !ok {
		violations = append(violations, fmt.Sprintf("%s.thumb_zone: invalid zone %q", prefix, e.ThumbZone))
	}
	if e.URL == "" {
		violations = append(violations, fmt.Sprintf("%s.url: cannot be empty", prefix))
	}
	return violations
}

// Batch is the ingestion envelope posted by the capture snippet.
type Batch struct {
	ProjectID string       `json:"project_id"`
	Events    []TouchEvent `json:"events"`
}

// Project is the owning entity events are attributed to.
// AllowedDomains nil or empty means unrestricted ingestion.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKey         string    `json:"api_key"`
	AllowedDomains []string  `json:"allowed_domains"`
	CreatedAt      time.Time `json:"created_at"`
}

// Insight is one derived statistic over a project's event set. Computed
// fresh per request, never persisted.
type Insight struct {
	Type  string `json:"type"`
	Data  any    `json:"data"`
	Score *int   `json:"score,omitempty"`
}

// HeatmapPoint is one 20px density bucket, anchored at its lower-left corner.
type HeatmapPoint struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"` // count/maxCount, linear
}
