package allocator

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/pkg/util"
)

type memCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func newMemCounter() *memCounter {
	return &memCounter{values: make(map[string]int64)}
}

func (c *memCounter) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]++
	return c.values[key], nil
}

type failingCounter struct{}

func (failingCounter) Incr(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("connection refused")
}

func testConfig(policy config.NamingPolicy) config.TicketingConfig {
	return config.TicketingConfig{Naming: policy, IDWidth: 4, CounterKey: "ticket:sequence"}
}

func TestNext_ZeroPadded(t *testing.T) {
	a := New(newMemCounter(), testConfig(config.NamingSequential))
	ctx := context.Background()

	id, err := a.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "0001", id)

	id, err = a.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "0002", id)
}

func TestNext_ConcurrentAllocationsAreDistinct(t *testing.T) {
	a := New(newMemCounter(), testConfig(config.NamingSequential))
	ctx := context.Background()

	const workers = 50
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = a.Next(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[string]bool, workers)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	sort.Strings(ids)
	for i, id := range ids {
		n, err := strconv.Atoi(id)
		require.NoError(t, err)
		require.Equal(t, i+1, n)
	}
}

func TestNext_StorageUnavailable(t *testing.T) {
	a := New(failingCounter{}, testConfig(config.NamingSequential))

	_, err := a.Next(context.Background())
	require.Error(t, err)
	require.True(t, util.HasCode(err, "STORAGE_UNAVAILABLE"))
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "alpha-team", Sanitize("Alpha Team"))
	require.Equal(t, "alpha-team", Sanitize("  Alpha   Team  "))
	require.Equal(t, "alpha", Sanitize("ALPHA"))
}

func TestResolveName_SuffixScan(t *testing.T) {
	require.Equal(t, "alpha-team", ResolveName("alpha-team", nil))
	require.Equal(t, "alpha-team-2", ResolveName("alpha-team", []string{"alpha-team"}))
	require.Equal(t, "alpha-team-3", ResolveName("alpha-team", []string{"alpha-team", "alpha-team-2"}))
	require.Equal(t, "alpha-team-2", ResolveName("alpha-team", []string{"alpha-team", "alpha-team-3"}))
}

func TestChannelName_Policies(t *testing.T) {
	seq := New(newMemCounter(), testConfig(config.NamingSequential))
	require.Equal(t, "0007", seq.ChannelName("0007", "Alpha Team", []string{"alpha-team"}))

	lbl := New(newMemCounter(), testConfig(config.NamingLabel))
	require.Equal(t, "alpha-team-2", lbl.ChannelName("0007", "Alpha Team", []string{"alpha-team"}))
}
