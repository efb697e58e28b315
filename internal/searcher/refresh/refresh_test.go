package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/status"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
)

type fakeEngine struct {
	pending atomic.Int64
	calls   atomic.Int64
	err     error
}

func (e *fakeEngine) ReloadSegments() (int, error) {
	e.calls.Add(1)
	if e.err != nil {
		return 0, e.err
	}
	return int(e.pending.Swap(0)), nil
}

type fakeCache struct{ invalidations atomic.Int64 }

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidations.Add(1)
	return nil
}

func TestRefreshInvalidatesOnlyWhenSegmentsAdded(t *testing.T) {
	engine := &fakeEngine{}
	c := &fakeCache{}
	r := New(engine, c)

	added, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, c.invalidations.Load())

	engine.pending.Store(2)
	added, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, int64(1), c.invalidations.Load())
}

func TestRefreshWithoutCache(t *testing.T) {
	engine := &fakeEngine{}
	engine.pending.Store(1)
	added, err := New(engine, nil).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestRefreshReportsReloadFailure(t *testing.T) {
	errDisk := errors.New("disk gone")
	c := &fakeCache{}
	_, err := New(&fakeEngine{err: errDisk}, c).Refresh(context.Background())
	assert.ErrorIs(t, err, errDisk)
	assert.Zero(t, c.invalidations.Load())
}

func TestHandleIndexComplete(t *testing.T) {
	engine := &fakeEngine{}
	c := &fakeCache{}
	r := New(engine, c)

	abandoned, err := json.Marshal(consumer.IndexCompleteEvent{Artifact: "a.jar!/A.class", Status: status.StatusAbandoned})
	require.NoError(t, err)
	require.NoError(t, r.HandleIndexComplete(context.Background(), nil, abandoned))
	assert.Zero(t, engine.calls.Load())

	engine.pending.Store(1)
	indexed, err := json.Marshal(consumer.IndexCompleteEvent{Artifact: "a.jar!/B.class", Status: status.StatusIndexed})
	require.NoError(t, err)
	require.NoError(t, r.HandleIndexComplete(context.Background(), nil, indexed))
	assert.Equal(t, int64(1), engine.calls.Load())
	assert.Equal(t, int64(1), c.invalidations.Load())

	err = r.HandleIndexComplete(context.Background(), nil, []byte("garbage"))
	assert.True(t, kafka.IsPermanent(err))
}

func TestRunReloadsPeriodically(t *testing.T) {
	engine := &fakeEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(engine, nil).Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return engine.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
