package work

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 7, Workers(7, 0))
	n := Workers(0, 100)
	assert.Equal(t, runtime.NumCPU(), n)
	assert.GreaterOrEqual(t, Workers(0, 0), 1)
	assert.GreaterOrEqual(t, Workers(0, 1), 1)
}

func TestMapPreservesInputOrder(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	out, err := Map(context.Background(), items, 8, func(_ context.Context, i int, v int) (int, error) {
		// Later items finish first
		time.Sleep(time.Duration(len(items)-i) * 100 * time.Microsecond)
		return v * v, nil
	})
	require.NoError(t, err)
	require.Len(t, out, len(items))
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMapRespectsLimit(t *testing.T) {
	var active, peak int32
	items := make([]int, 20)

	_, err := Map(context.Background(), items, 3, func(_ context.Context, _ int, _ int) (int, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Map(context.Background(), []int{1, 2, 3}, 2, func(_ context.Context, _ int, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestEachEmpty(t *testing.T) {
	err := Each(context.Background(), []string{}, 4, func(context.Context, int, string) error {
		t.Fatal("fn must not be called")
		return nil
	})
	assert.NoError(t, err)
}
