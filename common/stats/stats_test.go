package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScopedCounters(t *testing.T) {
	stat := DefaultStatsReceiver()
	dispatch := stat.Scope("dispatch")
	dispatch.Counter(DispatchAssignedCounter).Inc(2)
	dispatch.Counter(DispatchAssignedCounter).Inc(1)
	stat.Counter("dispatch", DispatchAssignedCounter).Inc(1)

	if c := stat.Counter("dispatch/" + DispatchAssignedCounter); c.Count() != 0 {
		t.Fatalf("slashes in a name element must not create scope, got %d", c.Count())
	}
	if c := dispatch.Counter(DispatchAssignedCounter); c.Count() != 4 {
		t.Fatalf("expected 4, got %d", c.Count())
	}

	var rendered map[string]interface{}
	if err := json.Unmarshal(stat.Render(true), &rendered); err != nil {
		t.Fatalf("render produced invalid json: %v", err)
	}
	if _, ok := rendered["dispatch/assigned"]; !ok {
		t.Fatalf("expected dispatch/assigned in %v", rendered)
	}
}

func TestScopeDoesNotAlias(t *testing.T) {
	root := DefaultStatsReceiver().Scope("a")
	b := root.Scope("b")
	c := root.Scope("c")
	b.Counter("x").Inc(1)
	if c.Counter("x").Count() != 0 {
		t.Fatalf("sibling scopes share a name")
	}
}

func TestLatency(t *testing.T) {
	stat := DefaultStatsReceiver()
	l := stat.Latency(ProbeLatency_ms).Time()
	time.Sleep(time.Millisecond)
	l.Stop()
	if n := stat.Latency(ProbeLatency_ms).Count(); n != 1 {
		t.Fatalf("expected one sample, got %d", n)
	}
}

func TestNilStatsReceiver(t *testing.T) {
	stat := NilStatsReceiver().Scope("x")
	stat.Counter("c").Inc(3)
	stat.Latency("l").Time().Stop()
	if len(stat.Render(false)) != 0 {
		t.Fatalf("nil receiver rendered output")
	}
}
