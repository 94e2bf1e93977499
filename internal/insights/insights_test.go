package insights

import (
	"reflect"
	"testing"

	"github.com/touchheat/touchheat/internal/models"
)

func zoneEvent(zone models.ThumbZone) models.TouchEvent {
	return models.TouchEvent{
		X: 100, Y: 100, ViewportW: 390, ViewportH: 844,
		ThumbZone: zone, URL: "https://example.com/",
	}
}

func findInsight(t *testing.T, insights []models.Insight, kind string) models.Insight {
	t.Helper()
	for _, ins := range insights {
		if ins.Type == kind {
			return ins
		}
	}
	t.Fatalf("insight %q not found", kind)
	return models.Insight{}
}

func TestComputeEmptySet(t *testing.T) {
	insights := Compute(nil)
	if insights == nil {
		t.Fatal("Compute(nil) returned nil, want empty slice")
	}
	if len(insights) != 0 {
		t.Errorf("Compute(nil) returned %d insights, want 0", len(insights))
	}
}

func TestComputeAllFiveInsights(t *testing.T) {
	insights := Compute([]models.TouchEvent{zoneEvent(models.ZoneCenter)})
	if len(insights) != 5 {
		t.Fatalf("Compute() returned %d insights, want 5", len(insights))
	}
	want := []string{
		"mis_tap_rate", "thumb_zone_distribution", "unreachable_ctas",
		"reachability_scores", "scroll_comfort_score",
	}
	for i, kind := range want {
		if insights[i].Type != kind {
			t.Errorf("insight %d type = %q, want %q", i, insights[i].Type, kind)
		}
	}
}

func TestMisTapRate(t *testing.T) {
	var events []models.TouchEvent
	for i := 0; i < 100; i++ {
		e := zoneEvent(models.ZoneCenter)
		e.MisTap = i < 5
		events = append(events, e)
	}

	ins := findInsight(t, Compute(events), "mis_tap_rate")
	data := ins.Data.(MisTapData)
	if data.Rate != 5 || data.Count != 5 || data.Total != 100 {
		t.Errorf("mis_tap_rate data = %+v, want {5 5 100}", data)
	}
	if ins.Score == nil || *ins.Score != 95 {
		t.Errorf("mis_tap_rate score = %v, want 95", ins.Score)
	}
}

func TestThumbZoneDistribution(t *testing.T) {
	events := []models.TouchEvent{
		zoneEvent(models.ZoneLeft),
		zoneEvent(models.ZoneLeft),
		zoneEvent(models.ZoneCenter),
		zoneEvent(models.ZoneRight),
	}

	ins := findInsight(t, Compute(events), "thumb_zone_distribution")
	data := ins.Data.(ZoneDistribution)
	want := ZoneDistribution{Left: 50, Right: 25, Center: 25, Unknown: 0}
	if data != want {
		t.Errorf("distribution = %+v, want %+v", data, want)
	}
}

// Percentages are rounded per bucket; three thirds round to 33 each and
// the total deliberately stays at 99.
func TestThumbZoneDistributionNotNormalized(t *testing.T) {
	events := []models.TouchEvent{
		zoneEvent(models.ZoneLeft),
		zoneEvent(models.ZoneCenter),
		zoneEvent(models.ZoneRight),
	}

	data := findInsight(t, Compute(events), "thumb_zone_distribution").Data.(ZoneDistribution)
	if data.Left+data.Right+data.Center+data.Unknown != 99 {
		t.Errorf("distribution = %+v, want buckets summing to 99", data)
	}
}

func TestUnreachableCTAs(t *testing.T) {
	rare := "#rare-cta"
	popular := "#popular-cta"
	var events []models.TouchEvent
	for i := 0; i < 1000; i++ {
		e := zoneEvent(models.ZoneCenter)
		switch {
		case i < 3:
			e.Selector = &rare
		case i < 18:
			e.Selector = &popular // 15/1000 = 1.5%
		}
		events = append(events, e)
	}

	data := findInsight(t, Compute(events), "unreachable_ctas").Data.(CTAReport)
	if len(data.CTAs) != 1 {
		t.Fatalf("got %d CTAs, want 1: %+v", len(data.CTAs), data.CTAs)
	}
	if data.CTAs[0].Selector != rare {
		t.Errorf("selector = %q, want %q", data.CTAs[0].Selector, rare)
	}
	if data.CTAs[0].TapRate != 0.3 {
		t.Errorf("tapRate = %v, want 0.3", data.CTAs[0].TapRate)
	}
}

func TestUnreachableCTAsSortedAndCapped(t *testing.T) {
	var events []models.TouchEvent
	selectors := make([]string, 12)
	for i := range selectors {
		selectors[i] = string(rune('a'+i)) + "-cta"
	}
	// Selector i tapped i+1 times out of 10000 total: all under 1%.
	for i, sel := range selectors {
		s := sel
		for j := 0; j <= i; j++ {
			e := zoneEvent(models.ZoneCenter)
			e.Selector = &s
			events = append(events, e)
		}
	}
	for len(events) < 10000 {
		events = append(events, zoneEvent(models.ZoneCenter))
	}

	data := findInsight(t, Compute(events), "unreachable_ctas").Data.(CTAReport)
	if len(data.CTAs) != 10 {
		t.Fatalf("got %d CTAs, want cap of 10", len(data.CTAs))
	}
	for i := 1; i < len(data.CTAs); i++ {
		if data.CTAs[i-1].TapRate > data.CTAs[i].TapRate {
			t.Errorf("CTAs not sorted ascending at %d: %v > %v", i, data.CTAs[i-1].TapRate, data.CTAs[i].TapRate)
		}
	}
	if data.CTAs[0].Selector != "a-cta" {
		t.Errorf("lowest tap rate selector = %q, want a-cta", data.CTAs[0].Selector)
	}
}

func TestReachabilityScores(t *testing.T) {
	corner := models.TouchEvent{
		X: 390, Y: 844, ViewportW: 390, ViewportH: 844,
		ThumbZone: models.ZoneRight, URL: "https://example.com/near",
	}
	far := models.TouchEvent{
		X: 0, Y: 0, ViewportW: 390, ViewportH: 844,
		ThumbZone: models.ZoneLeft, URL: "https://example.com/far",
	}

	data := findInsight(t, Compute([]models.TouchEvent{corner, far}), "reachability_scores").Data.(PageScores)
	if len(data.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(data.Pages))
	}
	scores := map[string]int{}
	for _, p := range data.Pages {
		scores[p.URL] = p.Score
	}
	if scores["https://example.com/near"] != 100 {
		t.Errorf("bottom-right tap score = %d, want 100", scores["https://example.com/near"])
	}
	if scores["https://example.com/far"] != 0 {
		t.Errorf("top-left tap score = %d, want 0", scores["https://example.com/far"])
	}
}

func TestScrollComfortScore(t *testing.T) {
	// 3 of 4 events in center, no mis-taps:
	// 0.75*0.7 + 1.0*0.3 = 0.825 -> 83
	events := []models.TouchEvent{
		zoneEvent(models.ZoneCenter),
		zoneEvent(models.ZoneCenter),
		zoneEvent(models.ZoneCenter),
		zoneEvent(models.ZoneLeft),
	}

	ins := findInsight(t, Compute(events), "scroll_comfort_score")
	data := ins.Data.(ComfortData)
	if data.Score != 83 {
		t.Errorf("scroll comfort score = %d, want 83", data.Score)
	}
	if ins.Score == nil || *ins.Score != data.Score {
		t.Errorf("insight score = %v, want %d", ins.Score, data.Score)
	}
}

func TestComputeIdempotent(t *testing.T) {
	sel := "#cta"
	var events []models.TouchEvent
	for i := 0; i < 50; i++ {
		e := zoneEvent(models.ThumbZone([]models.ThumbZone{
			models.ZoneLeft, models.ZoneCenter, models.ZoneRight,
		}[i%3]))
		e.MisTap = i%7 == 0
		if i%5 == 0 {
			e.Selector = &sel
		}
		events = append(events, e)
	}

	first := Compute(events)
	second := Compute(events)
	if !reflect.DeepEqual(first, second) {
		t.Error("Compute() is not idempotent over identical input")
	}
}
