package sharder

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Counters tallies attempted/success/failure for one phase, matching the
// "visited/scanned/created/cleaved/misplaced x attempted/success/failure"
// dump described in §7.
type Counters struct {
	Attempted int64
	Success   int64
	Failure   int64
}

func (c *Counters) attempt() { c.Attempted++ }
func (c *Counters) ok()      { c.Success++ }
func (c *Counters) fail()    { c.Failure++ }

// Stats accumulates one cycle's worth of counters. It is written by a
// single goroutine between workerpool join barriers and read only after the
// cycle completes, per the "stats counters are per-cycle" resource note
// (§5).
type Stats struct {
	mu sync.Mutex

	Visited   Counters
	Scanned   Counters
	Created   Counters
	Cleaved   Counters
	Misplaced Counters

	since time.Time

	gauges   *prometheusGauges
	registry prometheus.Registerer
}

type prometheusGauges struct {
	phase *prometheus.GaugeVec
}

// NewStats builds a zeroed Stats. If reg is non-nil, per-phase gauges are
// registered against it; pass nil in tests that don't care about metrics.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{since: time.Now()}
	if reg != nil {
		g := &prometheusGauges{
			phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "container_sharder",
				Name:      "phase_total",
				Help:      "Per-phase attempted/success/failure counts for the most recent cycle.",
			}, []string{"phase", "outcome"}),
		}
		reg.MustRegister(g.phase)
		s.gauges = g
		s.registry = reg
	}
	return s
}

// Reset zeroes every counter and marks the start of a new accounting
// window; it does not touch the registered Prometheus gauges, which retain
// the last cycle's published values until the next Publish.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Visited = Counters{}
	s.Scanned = Counters{}
	s.Created = Counters{}
	s.Cleaved = Counters{}
	s.Misplaced = Counters{}
	s.since = time.Now()
}

// Publish writes the current counters into the Prometheus gauges, when
// configured.
func (s *Stats) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gauges == nil {
		return
	}
	for phase, c := range map[string]Counters{
		"visited":   s.Visited,
		"scanned":   s.Scanned,
		"created":   s.Created,
		"cleaved":   s.Cleaved,
		"misplaced": s.Misplaced,
	} {
		s.gauges.phase.WithLabelValues(phase, "attempted").Set(float64(c.Attempted))
		s.gauges.phase.WithLabelValues(phase, "success").Set(float64(c.Success))
		s.gauges.phase.WithLabelValues(phase, "failure").Set(float64(c.Failure))
	}
}

// Dump logs the current counters as a single structured entry -- the
// "periodic stats dump" operator surface from §7 -- and publishes them to
// Prometheus.
func (s *Stats) Dump(log *logrus.Entry) {
	s.mu.Lock()
	elapsed := time.Since(s.since)
	fields := logrus.Fields{
		"elapsed_s":          elapsed.Seconds(),
		"visited_attempted":  s.Visited.Attempted,
		"visited_success":    s.Visited.Success,
		"visited_failure":    s.Visited.Failure,
		"scanned_attempted":  s.Scanned.Attempted,
		"scanned_success":    s.Scanned.Success,
		"scanned_failure":    s.Scanned.Failure,
		"created_attempted":  s.Created.Attempted,
		"created_success":    s.Created.Success,
		"created_failure":    s.Created.Failure,
		"cleaved_attempted":  s.Cleaved.Attempted,
		"cleaved_success":    s.Cleaved.Success,
		"cleaved_failure":    s.Cleaved.Failure,
		"misplaced_attempted": s.Misplaced.Attempted,
		"misplaced_success":   s.Misplaced.Success,
		"misplaced_failure":   s.Misplaced.Failure,
	}
	s.mu.Unlock()

	log.WithFields(fields).Info("sharder cycle stats")
	s.Publish()
}

// Since returns the time the current accounting window was opened.
func (s *Stats) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}
