package health

import (
	"testing"
	"time"

	"github.com/easyops/contextcore/pkg/kb"
)

func TestTracker_Uptime(t *testing.T) {
	now := time.Unix(0, 0)
	tracker := NewTracker(WithClock(func() time.Time { return now }))

	now = now.Add(90 * time.Second)
	snapshot := tracker.Snapshot()

	if snapshot.Uptime != 90*time.Second {
		t.Errorf("expected uptime 90s, got %s", snapshot.Uptime)
	}
	if snapshot.Status != StatusServing {
		t.Errorf("expected serving status, got %s", snapshot.Status)
	}
}

func TestTracker_RequestCounters(t *testing.T) {
	tracker := NewTracker()

	tracker.RecordRequest(false, false)
	tracker.RecordRequest(false, true)
	tracker.RecordRequest(true, false)

	snapshot := tracker.Snapshot()
	if snapshot.Requests != 3 {
		t.Errorf("expected 3 requests, got %d", snapshot.Requests)
	}
	if snapshot.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", snapshot.Failures)
	}
	if snapshot.Degraded != 1 {
		t.Errorf("expected 1 degraded, got %d", snapshot.Degraded)
	}
}

func TestTracker_CacheCounters(t *testing.T) {
	tracker := NewTracker()

	tracker.RecordCacheHit()
	tracker.RecordCacheHit()
	tracker.RecordCacheHit()
	tracker.RecordCacheMiss()

	snapshot := tracker.Snapshot()
	if snapshot.CacheHits != 3 || snapshot.CacheMisses != 1 {
		t.Errorf("unexpected counters: hits=%d misses=%d", snapshot.CacheHits, snapshot.CacheMisses)
	}
	if snapshot.HitRate() != 0.75 {
		t.Errorf("expected hit rate 0.75, got %f", snapshot.HitRate())
	}
}

func TestTracker_HitRateNoQueries(t *testing.T) {
	snapshot := NewTracker().Snapshot()
	if snapshot.HitRate() != 0 {
		t.Errorf("expected 0 hit rate without queries, got %f", snapshot.HitRate())
	}
}

func TestTracker_SourceErrors(t *testing.T) {
	tracker := NewTracker()

	tracker.RecordSourceError("mind", kb.StatusTimedOut)
	tracker.RecordSourceError("mind", kb.StatusError)
	tracker.RecordSourceError("soul", kb.StatusUnavailable)

	snapshot := tracker.Snapshot()
	if snapshot.SourceErrors["mind"] != 2 {
		t.Errorf("expected 2 errors for mind, got %d", snapshot.SourceErrors["mind"])
	}
	if snapshot.SourceErrors["soul"] != 1 {
		t.Errorf("expected 1 error for soul, got %d", snapshot.SourceErrors["soul"])
	}
}

func TestTracker_SnapshotIsDetached(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordSourceError("mind", kb.StatusError)

	snapshot := tracker.Snapshot()
	snapshot.SourceErrors["mind"] = 999

	if tracker.Snapshot().SourceErrors["mind"] != 1 {
		t.Error("mutating a snapshot must not affect the tracker")
	}
}

func TestTracker_SetServing(t *testing.T) {
	tracker := NewTracker()

	tracker.SetServing(false)
	if tracker.Snapshot().Status != StatusNotServing {
		t.Error("expected not_serving after SetServing(false)")
	}

	tracker.SetServing(true)
	if tracker.Snapshot().Status != StatusServing {
		t.Error("expected serving after SetServing(true)")
	}
}
