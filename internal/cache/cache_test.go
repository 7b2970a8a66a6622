package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/translate"
)

// memStore is an in-memory Store for exercising Cache behavior.
type memStore struct {
	mu       sync.Mutex
	factors  map[string]FactorRecord
	overlays map[string]OverlayRecord
	putErr   error
}

func newMemStore() *memStore {
	return &memStore{
		factors:  make(map[string]FactorRecord),
		overlays: make(map[string]OverlayRecord),
	}
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) GetFactors(_ context.Context, key string) (*FactorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.factors[key]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memStore) PutFactors(_ context.Context, rec FactorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.factors[rec.Key] = rec
	return nil
}

func (m *memStore) GetOverlay(_ context.Context, key string) (*OverlayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.overlays[key]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memStore) PutOverlay(_ context.Context, rec OverlayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.overlays[rec.Key] = rec
	return nil
}

func (m *memStore) Stats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Factors: len(m.factors), Overlays: len(m.overlays)}, nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factors = make(map[string]FactorRecord)
	m.overlays = make(map[string]OverlayRecord)
	return nil
}

var testInfo = translate.CacheInfo{Zone1: "alpha", Zone2: "beta", Method: "spatial", ConfigHash: "cfg"}

func TestFactorsComputeThenHit(t *testing.T) {
	store := newMemStore()
	c := New(store)

	want := []model.PairFactor{{Zone1: "A", Zone2: "B", Forward: 1, Reverse: 1}}
	var computes int
	compute := func(context.Context) ([]model.PairFactor, error) {
		computes++
		return want, nil
	}

	pairs, hit, err := c.Factors(context.Background(), "k1", testInfo, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, pairs)

	pairs, hit, err = c.Factors(context.Background(), "k1", testInfo, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, pairs)
	assert.Equal(t, 1, computes)

	rec := store.factors["k1"]
	assert.Equal(t, "alpha", rec.Zone1)
	assert.Equal(t, "spatial", rec.Method)
}

func TestFactorsWriteFailureStillReturnsResult(t *testing.T) {
	store := newMemStore()
	store.putErr = assert.AnError
	c := New(store)

	want := []model.PairFactor{{Zone1: "A", Zone2: "B", Forward: 0.5}}
	pairs, hit, err := c.Factors(context.Background(), "k1", testInfo, func(context.Context) ([]model.PairFactor, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, pairs)
}

func TestFactorsComputeErrorPropagates(t *testing.T) {
	c := New(newMemStore())
	_, _, err := c.Factors(context.Background(), "k1", testInfo, func(context.Context) ([]model.PairFactor, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)
}

func TestConcurrentRequestsShareOneComputation(t *testing.T) {
	store := newMemStore()
	c := New(store)

	var computes atomic.Int32
	gate := make(chan struct{})
	compute := func(context.Context) ([]model.PairFactor, error) {
		computes.Add(1)
		<-gate
		return []model.PairFactor{{Zone1: "A", Zone2: "B", Forward: 1}}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := c.Factors(context.Background(), "shared", testInfo, compute)
			assert.NoError(t, err)
		}()
	}
	close(start)
	// Let the goroutines pile up behind the in-flight call, then release.
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, computes.Load(), int32(n))
	assert.GreaterOrEqual(t, computes.Load(), int32(1))
}

func TestOverlayRoundTrip(t *testing.T) {
	store := newMemStore()
	c := New(store)

	want := []model.Tile{{Zone1: "A", Lower: "L1", Mass: 42}}
	tiles, hit, err := c.Overlay(context.Background(), "ov1", func(context.Context) ([]model.Tile, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, tiles)

	tiles, hit, err = c.Overlay(context.Background(), "ov1", func(context.Context) ([]model.Tile, error) {
		t.Fatal("compute called on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, tiles)
}

func TestStatsAndClear(t *testing.T) {
	store := newMemStore()
	c := New(store)

	_, _, err := c.Factors(context.Background(), "k1", testInfo, func(context.Context) ([]model.PairFactor, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_, _, err = c.Overlay(context.Background(), "ov1", func(context.Context) ([]model.Tile, error) {
		return nil, nil
	})
	require.NoError(t, err)

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Factors: 1, Overlays: 1}, st)

	require.NoError(t, c.Clear(context.Background()))
	st, err = c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}
