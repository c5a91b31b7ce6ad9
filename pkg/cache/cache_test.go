package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/easyops/contextcore/pkg/schema"
)

func testCompiled(t *testing.T, summary string) *schema.Compiled {
	t.Helper()
	return schema.NewCompiled(schema.Default(), map[string]schema.Value{
		"summary": schema.StringValue(summary),
	})
}

func TestCache_LookupMiss(t *testing.T) {
	c := New()

	_, ok := c.Lookup(Key{Subject: "alice"})
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_InsertLookup(t *testing.T) {
	c := New()
	key := Key{Subject: "alice", AgentType: "master"}
	value := testCompiled(t, "hello")

	c.Insert(key, value, 0.8)

	got, ok := c.Lookup(key)
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got != value {
		t.Error("expected the inserted value")
	}
	if c.Len() != 1 {
		t.Errorf("expected len 1, got %d", c.Len())
	}
}

func TestCache_LookupUpdatesAccessNotRelevance(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(WithClock(func() time.Time { return now }))
	key := Key{Subject: "alice"}
	c.Insert(key, testCompiled(t, "v"), 0.5)

	now = now.Add(time.Minute)
	if _, ok := c.Lookup(key); !ok {
		t.Fatal("expected hit")
	}

	snapshots := c.Recent(1)
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Hits != 1 {
		t.Errorf("expected 1 hit, got %d", snapshots[0].Hits)
	}
	if !snapshots[0].LastAccess.Equal(now) {
		t.Error("expected last access updated by lookup")
	}
	if snapshots[0].Relevance != 0.5 {
		t.Errorf("relevance must not change on lookup, got %f", snapshots[0].Relevance)
	}
}

func TestCache_CapacityBound(t *testing.T) {
	c := New(WithCapacity(3))

	for i := 0; i < 10; i++ {
		key := Key{Subject: fmt.Sprintf("subject-%d", i)}
		c.Insert(key, testCompiled(t, "v"), 0.5)
	}

	if c.Len() != 3 {
		t.Errorf("expected len 3 after 10 inserts, got %d", c.Len())
	}
	if c.Evictions() != 7 {
		t.Errorf("expected 7 evictions, got %d", c.Evictions())
	}
}

func TestCache_EvictsLowestScore(t *testing.T) {
	// 容量 2：t=0 写入 K1 (相关性 0.9)，t=1s 写入 K2 (相关性 0.2)，
	// 写入 K3 时应淘汰 K2 而不是 K1
	now := time.Unix(0, 0)
	c := New(WithCapacity(2), WithClock(func() time.Time { return now }))

	k1 := Key{Subject: "k1"}
	k2 := Key{Subject: "k2"}
	k3 := Key{Subject: "k3"}

	c.Insert(k1, testCompiled(t, "v1"), 0.9)
	now = now.Add(time.Second)
	c.Insert(k2, testCompiled(t, "v2"), 0.2)
	now = now.Add(time.Second)
	c.Insert(k3, testCompiled(t, "v3"), 0.5)

	if _, ok := c.Lookup(k1); !ok {
		t.Error("K1 should survive eviction")
	}
	if _, ok := c.Lookup(k2); ok {
		t.Error("K2 should have been evicted")
	}
	if _, ok := c.Lookup(k3); !ok {
		t.Error("K3 should be present")
	}
}

func TestCache_EvictionTieBreaksOnOldestCreation(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(WithCapacity(2), WithClock(func() time.Time { return now }))

	first := Key{Subject: "first"}
	c.Insert(first, testCompiled(t, "v"), 0.5)

	now = now.Add(time.Second)
	second := Key{Subject: "second"}
	c.Insert(second, testCompiled(t, "v"), 0.5)

	// 访问两个条目使最近访问时间一致，得分完全相同
	now = now.Add(time.Second)
	c.Lookup(first)
	c.Lookup(second)

	now = now.Add(time.Second)
	c.Insert(Key{Subject: "third"}, testCompiled(t, "v"), 0.5)

	if _, ok := c.Lookup(first); ok {
		t.Error("oldest-created entry should be evicted on tie")
	}
	if _, ok := c.Lookup(second); !ok {
		t.Error("newer entry should survive on tie")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	key := Key{Subject: "alice"}
	c.Insert(key, testCompiled(t, "v"), 0.9)

	now = now.Add(30 * time.Second)
	if _, ok := c.Lookup(key); !ok {
		t.Fatal("expected hit before TTL")
	}

	now = now.Add(time.Hour)
	if _, ok := c.Lookup(key); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, len = %d", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	c := New()
	c.Insert(Key{Subject: "a"}, testCompiled(t, "v"), 0.5)
	c.Insert(Key{Subject: "b"}, testCompiled(t, "v"), 0.5)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, len = %d", c.Len())
	}
}

func TestCache_Recent(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(WithClock(func() time.Time { return now }))

	for _, subject := range []string{"a", "b", "c"} {
		c.Insert(Key{Subject: subject}, testCompiled(t, "v"), 0.5)
		now = now.Add(time.Second)
	}

	// 回访最早的条目，使其成为最近访问
	c.Lookup(Key{Subject: "a"})

	recent := c.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}
	if recent[0].Key.Subject != "a" {
		t.Errorf("expected most recently accessed first, got %s", recent[0].Key.Subject)
	}
}

func TestEvictionScore(t *testing.T) {
	tau := time.Hour

	tests := []struct {
		name      string
		relevance float64
		age       time.Duration
	}{
		{"zero age keeps full relevance", 0.8, 0},
		{"older entry scores lower", 0.8, time.Hour},
		{"zero relevance scores zero", 0.0, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := EvictionScore(tt.relevance, tt.age, tau)
			if score < 0 || score > tt.relevance {
				t.Errorf("score %f out of range [0, %f]", score, tt.relevance)
			}
			if tt.age == 0 && score != tt.relevance {
				t.Errorf("expected full relevance at age 0, got %f", score)
			}
		})
	}

	// 单调性：相同相关性下年龄越大得分越低
	young := EvictionScore(0.5, time.Minute, tau)
	old := EvictionScore(0.5, time.Hour, tau)
	if old >= young {
		t.Errorf("expected monotonic decay, young=%f old=%f", young, old)
	}
}
