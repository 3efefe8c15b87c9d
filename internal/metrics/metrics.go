// Package metrics implements a thread-safe, in-process observability
// store queried by the read API, plus a Prometheus export of the same
// counters for cluster-wide scraping.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ringCapacity   = 100
	recordCapacity = 1000
)

// Event is one observability record.
type Event struct {
	Source      string
	Destination string
	Table       string
	RecordID    string
	LatencyMs   int64
	At          time.Time
}

func direction(source, destination string) string {
	return fmt.Sprintf("%s-to-%s", source, destination)
}

// receivesFrom extracts the source half of a "<source>-to-<destination>"
// direction key.
func receivesFrom(sourceDestination string) string {
	source, _, found := strings.Cut(sourceDestination, "-to-")
	if !found {
		return ""
	}
	return source
}

// Stats is the on-demand aggregate computed from a direction's ring
// buffer, shaped for direct JSON export by the outward API.
type Stats struct {
	Direction         string     `json:"direction"`
	ReceivesFrom      string     `json:"receives_from"`
	TotalSyncs        int        `json:"totalSyncs"`
	AvgLatencyMs      float64    `json:"avgLatencyMs"`
	MinLatencyMs      int64      `json:"minLatencyMs"`
	MaxLatencyMs      int64      `json:"maxLatencyMs"`
	LastSyncTime      *time.Time `json:"lastSyncTime"`
	LastSyncLatencyMs int64      `json:"lastSyncLatencyMs"`
	SyncsLastMinute   int        `json:"syncsLastMinute"`
	AvgLastMinuteMs   float64    `json:"avgLastMinuteMs"`
	RecentSyncs       []Event    `json:"recentSyncs"`
}

// RegistererGatherer is the subset of a *prometheus.Registry a Store
// needs: somewhere to register its collectors, and somewhere the
// /metrics endpoint can later scrape them back out of.
type RegistererGatherer interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Store holds the bounded ring buffers and the per-record map backing
// the sync observability surface.
type Store struct {
	mu          sync.Mutex
	rings       map[string][]Event // direction -> FIFO ring, oldest first
	recordOrder []string           // FIFO eviction order for records
	records     map[string]Event   // "table/id" -> most recent event

	registry     RegistererGatherer
	syncsTotal   *prometheus.CounterVec
	latencyHisto *prometheus.HistogramVec
}

// NewStore constructs an empty Store and registers its Prometheus
// collectors against reg. reg may be nil, in which case a fresh
// registry is created — callers that want the /metrics endpoint to
// serve exactly what this Store records should pass the same registry
// the HTTP handler later gathers from.
func NewStore(reg RegistererGatherer) *Store {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Store{
		rings:    make(map[string][]Event),
		records:  make(map[string]Event),
		registry: reg,
		syncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inbound_sync_events_total",
			Help: "Total number of change events materialized by direction and table.",
		}, []string{"direction", "table"}),
		latencyHisto: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inbound_sync_latency_ms",
			Help:    "End-to-end sync latency in milliseconds by direction.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		}, []string{"direction"}),
	}

	reg.MustRegister(s.syncsTotal, s.latencyHisto)
	return s
}

// Record appends an event to the direction's ring (capacity 100, FIFO
// eviction) and updates the per-record map (capacity 1000, FIFO eviction
// on overflow).
func (s *Store) Record(source, destination, table, id string, latencyMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := direction(source, destination)
	ev := Event{Source: source, Destination: destination, Table: table, RecordID: id, LatencyMs: latencyMs, At: time.Now()}

	ring := s.rings[dir]
	ring = append(ring, ev)
	if len(ring) > ringCapacity {
		ring = ring[len(ring)-ringCapacity:]
	}
	s.rings[dir] = ring

	key := table + "/" + id
	if _, exists := s.records[key]; !exists {
		s.recordOrder = append(s.recordOrder, key)
		if len(s.recordOrder) > recordCapacity {
			evict := s.recordOrder[0]
			s.recordOrder = s.recordOrder[1:]
			delete(s.records, evict)
		}
	}
	s.records[key] = ev

	s.syncsTotal.WithLabelValues(dir, table).Inc()
	s.latencyHisto.WithLabelValues(dir).Observe(float64(latencyMs))
}

// Stats computes the aggregate for direction "<source>-to-<destination>"
// from a locked copy of its ring.
func (s *Store) Stats(sourceDestination string) Stats {
	s.mu.Lock()
	ring := append([]Event(nil), s.rings[sourceDestination]...)
	s.mu.Unlock()

	stats := Stats{Direction: sourceDestination, ReceivesFrom: receivesFrom(sourceDestination)}
	if len(ring) == 0 {
		return stats
	}

	var sum int64
	stats.MinLatencyMs = ring[0].LatencyMs
	stats.MaxLatencyMs = ring[0].LatencyMs

	cutoff := time.Now().Add(-time.Minute)
	var lastMinuteSum int64
	var lastMinuteCount int

	for _, ev := range ring {
		sum += ev.LatencyMs
		if ev.LatencyMs < stats.MinLatencyMs {
			stats.MinLatencyMs = ev.LatencyMs
		}
		if ev.LatencyMs > stats.MaxLatencyMs {
			stats.MaxLatencyMs = ev.LatencyMs
		}
		if ev.At.After(cutoff) {
			lastMinuteSum += ev.LatencyMs
			lastMinuteCount++
		}
	}

	stats.TotalSyncs = len(ring)
	stats.AvgLatencyMs = float64(sum) / float64(len(ring))

	last := ring[len(ring)-1]
	lastAt := last.At
	stats.LastSyncTime = &lastAt
	stats.LastSyncLatencyMs = last.LatencyMs

	stats.SyncsLastMinute = lastMinuteCount
	if lastMinuteCount > 0 {
		stats.AvgLastMinuteMs = float64(lastMinuteSum) / float64(lastMinuteCount)
	}

	stats.RecentSyncs = recentNewestFirst(ring, 10)
	return stats
}

// Gatherer exposes the registry this Store's collectors were registered
// against, so the HTTP layer can mount a /metrics endpoint that scrapes
// exactly this Store's counters.
func (s *Store) Gatherer() prometheus.Gatherer {
	return s.registry
}

// RecordSyncTime returns the last sync event for (table, id), or false if
// none has been recorded yet.
func (s *Store) RecordSyncTime(table, id string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.records[table+"/"+id]
	return ev, ok
}

func recentNewestFirst(ring []Event, limit int) []Event {
	n := len(ring)
	if n > limit {
		n = limit
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = ring[len(ring)-1-i]
	}
	return out
}
