package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/touchheat/touchheat/internal/batch"
	"github.com/touchheat/touchheat/internal/classify"
)

var (
	simEndpoint string
	simProject  string
	simCount    int
	simURL      string
)

func init() {
	simulateCmd.Flags().StringVar(&simEndpoint, "endpoint", "http://127.0.0.1:8123/api/ingest", "ingest endpoint URL")
	simulateCmd.Flags().StringVar(&simProject, "project", "", "project id to attribute events to (required)")
	simulateCmd.Flags().IntVar(&simCount, "count", 100, "number of taps to generate")
	simulateCmd.Flags().StringVar(&simURL, "url", "https://example.com/", "page URL to report")
	_ = simulateCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate synthetic taps through the capture pipeline against a live endpoint",
	RunE:  runSimulate,
}

// simElement is a minimal element ancestry for selector derivation.
type simElement struct {
	id       string
	tag      string
	classes  []string
	parent   *simElement
	index    int
	siblings int
}

func (e *simElement) ID() string           { return e.id }
func (e *simElement) Tag() string          { return e.tag }
func (e *simElement) Classes() []string    { return e.classes }
func (e *simElement) SiblingIndex() int    { return e.index }
func (e *simElement) SiblingCount() int    { return e.siblings }
func (e *simElement) Parent() classify.Element {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func runSimulate(cmd *cobra.Command, args []string) error {
	const viewportW, viewportH = 390, 844 // typical phone viewport

	batcher := batch.New(simProject, simEndpoint,
		batch.WithTransport(batch.NewKeepaliveTransport(simEndpoint)))
	tracker := &classify.TapTracker{}

	targets := []classify.Element{
		&simElement{id: "buy-now"},
		&simElement{
			tag: "button", classes: []string{"btn", "btn-primary"}, index: 2, siblings: 3,
			parent: &simElement{tag: "div", classes: []string{"toolbar"}, index: 1, siblings: 1},
		},
		nil,
	}

	now := time.Now()
	var lastX, lastY float64
	for i := 0; i < simCount; i++ {
		x := rand.Float64() * viewportW
		y := rand.Float64() * viewportH
		// Roughly every twelfth tap is a quick near-repeat of the
		// previous one, which the classifier should flag as a mis-tap.
		if i%12 == 11 {
			now = now.Add(50 * time.Millisecond)
			x = clamp(lastX+rand.Float64()*20-10, 0, viewportW)
			y = clamp(lastY+rand.Float64()*20-10, 0, viewportH)
		} else {
			now = now.Add(time.Duration(200+rand.Intn(800)) * time.Millisecond)
		}

		var pressure *float64
		if rand.Intn(2) == 0 {
			p := rand.Float64()
			pressure = &p
		}

		event := classify.Capture(classify.Interaction{
			X: x, Y: y,
			ViewportW: viewportW, ViewportH: viewportH,
			Pressure: pressure,
			Target:   targets[i%len(targets)],
			URL:      simURL,
		}, tracker, now)
		batcher.Push(event)
		lastX, lastY = x, y
	}
	batcher.Close()

	fmt.Printf("delivered %d synthetic taps to %s\n", simCount, simEndpoint)
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
