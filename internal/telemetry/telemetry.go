package telemetry

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
)

// Tracker sends usage and failure events to PostHog. A Tracker without a key
// drops every event, and the zero value is not usable.
type Tracker struct {
	client     posthog.Client
	distinctID string

	mu     sync.Mutex
	counts map[string]int
}

// New creates a tracker. An empty key disables sending but events are still
// counted.
func New(key, host string) *Tracker {
	t := &Tracker{
		distinctID: "backend-" + uuid.NewString(),
		counts:     make(map[string]int),
	}
	if key == "" {
		return t
	}
	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		log.Printf("Failed to initialize PostHog: %v", err)
		return t
	}
	t.client = client
	return t
}

// Track records an event
func (t *Tracker) Track(event string, props map[string]interface{}) {
	t.mu.Lock()
	t.counts[event]++
	t.mu.Unlock()

	if t.client == nil {
		return
	}
	if err := t.client.Enqueue(posthog.Capture{
		DistinctId: t.distinctID,
		Event:      event,
		Properties: props,
	}); err != nil {
		log.Printf("Failed to enqueue %s event: %v", event, err)
	}
}

// TrackError records a failure of the named component
func (t *Tracker) TrackError(component string, err error, props map[string]interface{}) {
	if err == nil {
		return
	}
	merged := map[string]interface{}{"component": component, "error": err.Error()}
	for k, v := range props {
		merged[k] = v
	}
	t.Track("error", merged)
}

// Count returns how many times event was tracked
func (t *Tracker) Count(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[event]
}

// Close flushes queued events
func (t *Tracker) Close() {
	if t.client != nil {
		t.client.Close()
	}
}
