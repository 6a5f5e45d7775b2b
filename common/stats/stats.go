// This package provides a small scoped interface over go-metrics, so that
// fleet components can be handed a StatsReceiver and record counters and
// latencies without knowing where they are rendered.
//
// Original license: github.com/rcrowley/go-metrics/blob/master/LICENSE
package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// A registry wrapper for the metrics collected about a fleet run.
//
// Hierarchical names are stored using a '/' separator; '/' characters inside
// a name element are replaced by "_SLASH_".
type StatsReceiver interface {
	// Return a stats receiver that will automatically namespace elements with
	// the given scope args.
	//
	//   statsReceiver.Scope("foo", "bar").Counter("baz")  // is equivalent to
	//   statsReceiver.Counter("foo", "bar", "baz")
	//
	Scope(scope ...string) StatsReceiver

	// Provides an event counter
	Counter(name ...string) Counter

	// Provides a timer; durations are rendered in nanoseconds.
	Latency(name ...string) Latency

	// Construct a JSON document by marshaling the registry.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver is backed by a fresh go-metrics registry.
func DefaultStatsReceiver() StatsReceiver {
	return &defaultStatsReceiver{registry: metrics.NewRegistry()}
}

type defaultStatsReceiver struct {
	registry metrics.Registry
	scope    []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.registry, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scopedName(name...), metrics.NewCounter).(metrics.Counter)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	return &metricLatency{timer: s.registry.GetOrRegister(s.scopedName(name...), metrics.NewTimer).(metrics.Timer)}
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	var bytes []byte
	var err error
	if pretty {
		bytes, err = json.MarshalIndent(s.registry, "", "  ")
	} else {
		bytes, err = json.Marshal(s.registry)
	}
	if err != nil {
		log.Errorf("Couldn't render stats: %v", err)
		return []byte{}
	}
	return bytes
}

// Append to existing scope and scrub slashes. Never aliases s.scope.
func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	r := make([]string, 0, len(s.scope)+len(scope))
	r = append(r, s.scope...)
	for _, e := range scope {
		r = append(r, strings.Replace(e, "/", "_SLASH_", -1))
	}
	return r
}

func (s *defaultStatsReceiver) scopedName(scope ...string) string {
	return strings.Join(s.scoped(scope...), "/")
}

// NilStats ignores all stats operations.
func NilStatsReceiver() StatsReceiver {
	return &nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s *nilStatsReceiver) Scope(scope ...string) StatsReceiver { return s }
func (s *nilStatsReceiver) Counter(name ...string) Counter {
	return metrics.NilCounter{}
}
func (s *nilStatsReceiver) Latency(name ...string) Latency {
	return &metricLatency{timer: metrics.NilTimer{}}
}
func (s *nilStatsReceiver) Render(pretty bool) []byte { return []byte{} }

// Minimally mirror go-metrics instruments.
//
// Counter, satisfied by metrics.Counter.
type Counter interface {
	Count() int64
	Inc(int64)
}

// Latency
type Latency interface {
	// Time returns a started copy; call Stop on the copy.
	Time() Latency
	Stop()
	Count() int64
}

// Wraps the registered timer; the wrapper itself is never registered.
type metricLatency struct {
	timer metrics.Timer
	start time.Time
}

func (m *metricLatency) Time() Latency {
	return &metricLatency{timer: m.timer, start: time.Now()}
}

func (m *metricLatency) Stop() {
	if !m.start.IsZero() {
		m.timer.UpdateSince(m.start)
	}
}

func (m *metricLatency) Count() int64 { return m.timer.Count() }
