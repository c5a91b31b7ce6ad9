package aggregator

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easyops/contextcore/pkg/budget"
	"github.com/easyops/contextcore/pkg/cache"
	"github.com/easyops/contextcore/pkg/compiler"
	"github.com/easyops/contextcore/pkg/core/errors"
	"github.com/easyops/contextcore/pkg/health"
	"github.com/easyops/contextcore/pkg/kb"
	"github.com/easyops/contextcore/pkg/schema"
)

// countingCompiler 统计编译次数，可经 gate 阻塞流水线。
type countingCompiler struct {
	inner   compiler.Compiler
	calls   int64
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newCountingCompiler() *countingCompiler {
	return &countingCompiler{inner: compiler.NewTemplateCompiler()}
}

func (c *countingCompiler) Compile(ctx context.Context, aggregated *budget.Aggregated, s *schema.Schema) (*schema.Compiled, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.inner.Compile(ctx, aggregated, s)
}

func (c *countingCompiler) count() int64 {
	return atomic.LoadInt64(&c.calls)
}

type testEnv struct {
	aggregator *Aggregator
	cache      *cache.Cache
	compiler   *countingCompiler
	tracker    *health.Tracker
	mind       *kb.StaticSource
	soul       *kb.StaticSource
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	mind := kb.NewStaticSource("mind")
	mind.Seed("alice", []string{"likes go", "writes servers"}, 0.9)
	soul := kb.NewStaticSource("soul")
	soul.Seed("alice", []string{"night owl"}, 0.4)

	registry := kb.NewRegistry()
	registry.Register(mind)
	registry.Register(soul)

	tracker := health.NewTracker()
	fanout := kb.NewFanout(registry,
		kb.WithCallTimeout(time.Second),
		kb.WithRecorder(tracker),
	)

	comp := newCountingCompiler()
	c := cache.New(cache.WithCapacity(10))

	all := append([]Option{WithTracker(tracker)}, opts...)
	agg := New(fanout, budget.NewLimiter(nil), c, comp, schema.Default(), all...)

	return &testEnv{
		aggregator: agg,
		cache:      c,
		compiler:   comp,
		tracker:    tracker,
		mind:       mind,
		soul:       soul,
	}
}

func TestAggregator_FullPipeline(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.aggregator.GetContext(context.Background(), NewRequest(AgentMaster, WithSubject("alice")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.CacheHit {
		t.Error("first request must miss the cache")
	}
	if resp.Degraded {
		t.Error("healthy sources must not report degraded")
	}
	facts, _ := resp.Compiled.Get("facts")
	if len(facts.List) != 3 {
		t.Errorf("expected 3 facts, got %v", facts.List)
	}
	// 相关性更高的来源排在前面
	if facts.List[0] != "likes go" {
		t.Errorf("expected highest-relevance facts first, got %v", facts.List)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("expected 2 source statuses, got %v", resp.Sources)
	}
}

func TestAggregator_CacheHitShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.CacheHit {
		t.Error("second identical request must hit the cache")
	}
	if env.compiler.count() != 1 {
		t.Errorf("cache hit must not recompile, compile calls = %d", env.compiler.count())
	}

	snapshot := env.tracker.Snapshot()
	if snapshot.CacheHits != 1 || snapshot.CacheMisses != 1 {
		t.Errorf("unexpected cache counters: hits=%d misses=%d", snapshot.CacheHits, snapshot.CacheMisses)
	}
}

func TestAggregator_DifferentParamsMissCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 同主体不同预算不共享缓存条目
	resp, err := env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice"), WithTokenBudget(5)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CacheHit {
		t.Error("different token budget must not share a cache entry")
	}
}

func TestAggregator_PartialFailureIsDegradedSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.soul.SetDelay(func(ctx context.Context) error {
		return stderrors.New("connection refused")
	})

	resp, err := env.aggregator.GetContext(context.Background(), NewRequest(AgentMaster, WithSubject("alice")))
	if err != nil {
		t.Fatalf("partial failure must still succeed: %v", err)
	}

	if !resp.Degraded {
		t.Error("expected degraded response")
	}
	facts, _ := resp.Compiled.Get("facts")
	if len(facts.List) != 2 {
		t.Errorf("expected surviving source facts, got %v", facts.List)
	}

	snapshot := env.tracker.Snapshot()
	if snapshot.SourceErrors["soul"] != 1 {
		t.Errorf("expected recorded source error, got %v", snapshot.SourceErrors)
	}
}

func TestAggregator_TotalFailureDoesNotPopulateCache(t *testing.T) {
	env := newTestEnv(t)
	fail := func(ctx context.Context) error { return stderrors.New("down") }
	env.mind.SetDelay(fail)
	env.soul.SetDelay(fail)

	_, err := env.aggregator.GetContext(context.Background(), NewRequest(AgentMaster, WithSubject("alice")))
	if err == nil {
		t.Fatal("expected total fanout failure")
	}
	if !stderrors.Is(err, errors.ErrTotalFanoutFailure) {
		t.Errorf("expected ErrTotalFanoutFailure, got %v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("total fanout failure must be retryable")
	}
	if env.cache.Len() != 0 {
		t.Error("failed request must not populate the cache")
	}
	if env.compiler.count() != 0 {
		t.Error("compile must not run after total fanout failure")
	}
}

func TestAggregator_UnknownSourceIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.aggregator.GetContext(context.Background(),
		NewRequest(AgentMaster, WithSubject("alice"), WithSources("mind", "ghost")))
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
	if !stderrors.Is(err, errors.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestAggregator_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.aggregator.GetContext(ctx, NewRequest(AgentType("wizard"))); err == nil {
		t.Error("expected error for unknown agent type")
	}

	negative := -1
	req := NewRequest(AgentMaster)
	req.TokenBudget = &negative
	if _, err := env.aggregator.GetContext(ctx, req); err == nil {
		t.Error("expected error for negative budget")
	}
}

func TestAggregator_BudgetOverrideRespected(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.aggregator.GetContext(context.Background(),
		NewRequest(AgentMaster, WithSubject("alice"), WithTokenBudget(2)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.TokensUsed > 2 {
		t.Errorf("token count %d exceeds budget 2", resp.TokensUsed)
	}
	facts, _ := resp.Compiled.Get("facts")
	// "likes go" (2) 放得下，其余整条跳过
	if len(facts.List) != 1 || facts.List[0] != "likes go" {
		t.Errorf("unexpected facts under budget 2: %v", facts.List)
	}
}

func TestAggregator_SingleFlight(t *testing.T) {
	env := newTestEnv(t)
	env.compiler.entered = make(chan struct{})
	env.compiler.gate = make(chan struct{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*Response, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = env.aggregator.GetContext(context.Background(),
				NewRequest(AgentMaster, WithSubject("alice")))
		}(i)
	}

	// 等流水线进入编译阶段，再留出时间让其余调用方并入同一执行
	<-env.compiler.entered
	time.Sleep(50 * time.Millisecond)
	close(env.compiler.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].Compiled != results[0].Compiled {
			t.Error("all joiners must observe the same compiled result")
		}
	}
	if got := env.compiler.count(); got != 1 {
		t.Errorf("expected exactly one compile execution, got %d", got)
	}
}

func TestAggregator_CallerCancellationYieldsTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.compiler.gate = make(chan struct{})
	defer close(env.compiler.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice")))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !stderrors.Is(err, errors.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestAggregator_ProfileSurvivesZeroBudget(t *testing.T) {
	social := kb.NewStaticSource("social")
	social.Seed("alice", []string{"user:alice", "role:admin"}, 1.0)
	heart := kb.NewStaticSource("heart")
	heart.Seed("alice", []string{"emotion:joy (0.8)"}, 1.0)

	fetcher := kb.NewProfileFetcher(
		kb.NewSourceProfileAdapter(social),
		kb.NewSourceProfileAdapter(heart),
	)

	env := newTestEnv(t, WithProfileFetcher(fetcher))

	resp, err := env.aggregator.GetContext(context.Background(),
		NewRequest(AgentMaster, WithSubject("alice"), WithTokenBudget(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	facts, _ := resp.Compiled.Get("facts")
	if len(facts.List) != 0 {
		t.Errorf("zero budget must yield no facts, got %v", facts.List)
	}
	entities, _ := resp.Compiled.Get("entities")
	if len(entities.List) != 2 {
		t.Errorf("entities must survive zero budget, got %v", entities.List)
	}
	intent, _ := resp.Compiled.Get("intent")
	if intent.Str != "emotion:joy (0.8)" {
		t.Errorf("intent must survive zero budget, got %q", intent.Str)
	}
}

func TestAggregator_Health(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice")))
	env.aggregator.GetContext(ctx, NewRequest(AgentMaster, WithSubject("alice")))

	snapshot := env.aggregator.Health()
	if snapshot.Requests != 2 {
		t.Errorf("expected 2 requests, got %d", snapshot.Requests)
	}
	if snapshot.Status != health.StatusServing {
		t.Errorf("expected serving, got %s", snapshot.Status)
	}
}

func TestCacheKey_Fingerprint(t *testing.T) {
	base := NewRequest(AgentMaster, WithSubject("alice"))

	same := cacheKey(base, []string{"mind", "soul"}, 2000)
	if same != cacheKey(base, []string{"mind", "soul"}, 2000) {
		t.Error("identical parameters must produce identical keys")
	}
	if same == cacheKey(base, []string{"soul", "mind"}, 2000) {
		t.Error("source order participates in the fingerprint")
	}
	if same == cacheKey(base, []string{"mind", "soul"}, 100) {
		t.Error("budget participates in the fingerprint")
	}
}
