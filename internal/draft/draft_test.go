package draft_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey        = "castory.draft.test"
	testDebounce   = 20 * time.Millisecond
	testActivation = 80 * time.Millisecond
	waitFor        = time.Second
	tick           = 5 * time.Millisecond
)

var errMockStore = errors.New("mock store error")

type testState struct {
	Topic string `json:"topic"`
	Step  int    `json:"step"`
}

// recordingKV wraps a MemoryKV, counting calls and optionally failing or
// slowing down writes.
type recordingKV struct {
	*draft.MemoryKV

	mu         sync.Mutex
	puts       int
	deletes    int
	shouldFail bool
	putDelay   time.Duration
	putEntered chan struct{}
	releasePut chan struct{}
}

func newRecordingKV() *recordingKV {
	return &recordingKV{MemoryKV: draft.NewMemoryKV()}
}

func (r *recordingKV) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	fail := r.shouldFail
	r.mu.Unlock()

	if fail {
		return nil, errMockStore
	}

	return r.MemoryKV.Get(ctx, key)
}

func (r *recordingKV) Put(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.puts++
	fail, delay := r.shouldFail, r.putDelay
	entered, release := r.putEntered, r.releasePut
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	time.Sleep(delay)

	if fail {
		return errMockStore
	}

	return r.MemoryKV.Put(ctx, key, value)
}

func (r *recordingKV) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	r.deletes++
	r.mu.Unlock()

	return r.MemoryKV.Delete(ctx, key)
}

func (r *recordingKV) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.puts
}

func (r *recordingKV) stored(t *testing.T) (testState, bool) {
	t.Helper()

	var state testState

	ok := draft.Read(context.Background(), r.MemoryKV, testKey, &state)

	return state, ok
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "draft-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func newTestPersister(t *testing.T, kv core.KeyValueStore) *draft.Persister {
	t.Helper()

	persister := draft.NewPersister(kv, testKey, draft.Options{
		Debounce:   testDebounce,
		Activation: testActivation,
	}, newTestLogger(t))
	t.Cleanup(persister.Close)

	return persister
}

func waitActive(t *testing.T, persister *draft.Persister) {
	t.Helper()

	require.Eventually(t, persister.Active, waitFor, tick)
}

func TestRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newRecordingKV()

	var state testState

	assert.False(t, draft.Read(ctx, kv, testKey, &state), "missing key")

	require.NoError(t, kv.Put(ctx, testKey, []byte("{not json")))
	assert.False(t, draft.Read(ctx, kv, testKey, &state), "unparseable value")

	require.NoError(t, kv.Put(ctx, testKey, []byte(`{"topic":"technology","step":2}`)))
	assert.True(t, draft.Read(ctx, kv, testKey, &state))
	assert.Equal(t, testState{Topic: "technology", Step: 2}, state)

	kv.shouldFail = true
	assert.False(t, draft.Read(ctx, kv, testKey, &testState{}), "backend failure")
}

func TestOptions_WithDefaults(t *testing.T) {
	t.Parallel()

	defaults := draft.Options{}.WithDefaults()
	assert.Equal(t, draft.DefaultDebounce, defaults.Debounce)
	assert.Equal(t, draft.DefaultActivation, defaults.Activation)
	assert.Equal(t, draft.DefaultWriteTimeout, defaults.WriteTimeout)

	forced := draft.Options{Debounce: time.Second, Activation: 100 * time.Millisecond}.WithDefaults()
	assert.Greater(t, forced.Activation, forced.Debounce)
}

func TestPersister_NoWriteBeforeActivation(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)

	persister.Watch(testState{Topic: "early"})

	assert.Never(t, func() bool { return kv.putCount() > 0 }, testActivation/2, tick,
		"a settled state must wait for activation")

	require.Eventually(t, func() bool { return kv.putCount() == 1 }, waitFor, tick)

	state, ok := kv.stored(t)
	require.True(t, ok)
	assert.Equal(t, "early", state.Topic)

	_, saved := persister.LastSaved()
	assert.True(t, saved)
}

func TestPersister_NothingWatchedWritesNothing(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)

	waitActive(t, persister)
	assert.Never(t, func() bool { return kv.putCount() > 0 }, 3*testDebounce, tick)

	_, saved := persister.LastSaved()
	assert.False(t, saved)
}

func TestPersister_DebounceCoalescesChanges(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)
	waitActive(t, persister)

	for step := range 5 {
		persister.Watch(testState{Topic: "burst", Step: step})
		time.Sleep(testDebounce / 4)
	}

	require.Eventually(t, func() bool { return kv.putCount() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return kv.putCount() > 1 }, 3*testDebounce, tick)

	state, ok := kv.stored(t)
	require.True(t, ok)
	assert.Equal(t, testState{Topic: "burst", Step: 4}, state)
}

func TestPersister_WriteFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	kv.shouldFail = true
	persister := newTestPersister(t, kv)
	waitActive(t, persister)

	persister.Watch(testState{Topic: "lost"})

	require.Eventually(t, func() bool { return kv.putCount() == 1 }, waitFor, tick)

	_, saved := persister.LastSaved()
	assert.False(t, saved)
}

func TestPersister_NewestStateWinsOnSlowBackend(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	kv.putDelay = 3 * testDebounce
	persister := newTestPersister(t, kv)
	waitActive(t, persister)

	persister.Watch(testState{Topic: "first"})
	require.Eventually(t, func() bool { return kv.putCount() == 1 }, waitFor, tick)

	persister.Watch(testState{Topic: "second"})

	require.Eventually(t, func() bool {
		state, ok := kv.stored(t)

		return ok && state.Topic == "second"
	}, waitFor, tick)

	assert.Never(t, func() bool {
		state, _ := kv.stored(t)

		return state.Topic != "second"
	}, 5*testDebounce, tick)
}

func TestPersister_DiscardRemovesDraft(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newRecordingKV()
	persister := newTestPersister(t, kv)
	waitActive(t, persister)

	persister.Watch(testState{Topic: "published"})
	require.Eventually(t, func() bool { return kv.putCount() == 1 }, waitFor, tick)

	persister.Discard(ctx)

	_, ok := kv.stored(t)
	assert.False(t, ok)

	_, saved := persister.LastSaved()
	assert.False(t, saved)

	persister.Discard(ctx)
	assert.Equal(t, 2, kv.deletes, "discarding a missing draft is a no-op delete")
}

func TestPersister_DiscardDuringWriteClearsLastSaved(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	kv.putEntered = make(chan struct{})
	kv.releasePut = make(chan struct{})
	persister := newTestPersister(t, kv)

	persister.Watch(testState{Topic: "racing"})

	flushed := make(chan struct{})

	go func() {
		defer close(flushed)

		persister.Flush()
	}()

	<-kv.putEntered

	discarded := make(chan struct{})

	go func() {
		defer close(discarded)

		persister.Discard(context.Background())
	}()

	// Give Discard time to block on the in-flight write.
	time.Sleep(testDebounce)
	close(kv.releasePut)
	<-flushed
	<-discarded

	_, ok := kv.stored(t)
	assert.False(t, ok, "the discard deletes after the in-flight write")

	_, saved := persister.LastSaved()
	assert.False(t, saved, "no save is reported for a discarded draft")
}

func TestPersister_DiscardCancelsPendingWrite(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)
	waitActive(t, persister)

	persister.Watch(testState{Topic: "abandoned"})
	persister.Discard(context.Background())

	assert.Never(t, func() bool { return kv.putCount() > 0 }, 4*testDebounce, tick)
}

func TestPersister_CloseDropsPendingWrite(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)

	persister.Watch(testState{Topic: "closed tab"})
	persister.Close()

	assert.Never(t, func() bool { return kv.putCount() > 0 }, 2*testActivation, tick)

	persister.Watch(testState{Topic: "after close"})
	assert.Never(t, func() bool { return kv.putCount() > 0 }, 3*testDebounce, tick)
}

func TestPersister_FlushWritesBeforeActivation(t *testing.T) {
	t.Parallel()

	kv := newRecordingKV()
	persister := newTestPersister(t, kv)

	persister.Flush()
	assert.Zero(t, kv.putCount(), "nothing watched yet")

	persister.Watch(testState{Topic: "leaving", Step: 3})
	persister.Flush()

	assert.Equal(t, 1, kv.putCount())

	state, ok := kv.stored(t)
	require.True(t, ok)
	assert.Equal(t, testState{Topic: "leaving", Step: 3}, state)

	persister.Close()
	persister.Flush()
	assert.Equal(t, 1, kv.putCount(), "a closed persister never writes")
}

func TestMemoryKV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := draft.NewMemoryKV()

	_, err := kv.Get(ctx, testKey)
	require.ErrorIs(t, err, core.ErrKeyNotFound)

	value := []byte("value")
	require.NoError(t, kv.Put(ctx, testKey, value))
	value[0] = 'X'

	got, err := kv.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got, "stored values are copied")

	require.NoError(t, kv.Delete(ctx, testKey))
	require.NoError(t, kv.Delete(ctx, testKey))

	_, err = kv.Get(ctx, testKey)
	require.ErrorIs(t, err, core.ErrKeyNotFound)
}
