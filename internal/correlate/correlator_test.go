package correlate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletTracker/internal/model"
	"walletTracker/internal/verify"
)

const (
	window = 30 * time.Millisecond
	target = "0x1111111111111111111111111111111111111111"
)

// fakeVerifier records every verification and tracks concurrency per hash.
type fakeVerifier struct {
	mu        sync.Mutex
	groups    []model.CorrelationGroup
	running   map[string]int
	maxByHash map[string]int
	gate      chan struct{}
	fail      bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{running: map[string]int{}, maxByHash: map[string]int{}}
}

func (f *fakeVerifier) Verify(ctx context.Context, group model.CorrelationGroup) (model.MergedTransaction, error) {
	f.mu.Lock()
	f.groups = append(f.groups, group)
	f.running[group.TxHash]++
	if f.running[group.TxHash] > f.maxByHash[group.TxHash] {
		f.maxByHash[group.TxHash] = f.running[group.TxHash]
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running[group.TxHash]--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.MergedTransaction{}, ctx.Err()
		}
	}
	if f.fail {
		return model.MergedTransaction{}, &verify.Failure{TxHash: group.TxHash, Target: group.TargetAddress, Attempts: 3}
	}
	return model.MergedTransaction{
		Category:     model.CategoryNovel,
		Hash:         group.TxHash,
		KindsPresent: group.KindsSeen,
	}, nil
}

func (f *fakeVerifier) verified() []model.CorrelationGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CorrelationGroup(nil), f.groups...)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []model.CorrelationGroup
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, group model.CorrelationGroup, tx model.MergedTransaction) model.NotificationRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, group)
	return model.NotificationRecord{GroupID: group.ID, TxHash: group.TxHash, Delivered: len(group.Recipients)}
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type harness struct {
	c          *Correlator
	verifier   *fakeVerifier
	dispatcher *fakeDispatcher
	outcomes   chan Outcome
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWindow(t, window)
}

func newHarnessWindow(t *testing.T, w time.Duration) *harness {
	t.Helper()
	h := &harness{
		verifier:   newFakeVerifier(),
		dispatcher: &fakeDispatcher{},
		outcomes:   make(chan Outcome, 16),
	}
	h.c = New(h.verifier, h.dispatcher, Options{
		Window:    w,
		OnSettled: func(o Outcome) { h.outcomes <- o },
	}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.c.Shutdown(ctx)
	})
	return h
}

func (h *harness) next(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a settled group")
		return Outcome{}
	}
}

func event(hash string, kind model.AssetKind, recipients ...string) model.ActivityEvent {
	return model.ActivityEvent{
		Network:       model.Mainnet,
		TxHash:        hash,
		BlockNum:      19000000,
		TargetAddress: target,
		Kind:          kind,
		Recipients:    recipients,
	}
}

// A lone event produces exactly one notification.
func TestSingleEventNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	h.c.Ingest(event("0xA1", model.KindNative, "alice"))

	o := h.next(t)
	require.NoError(t, o.Err)
	assert.Equal(t, model.StateNotified, o.Group.State)
	assert.Equal(t, "0xa1", o.Group.TxHash)
	require.NotNil(t, o.Record)
	assert.Equal(t, 1, h.dispatcher.count())
}

// Sibling events within the window merge into one group regardless of order.
func TestSiblingEventsShareOneGroup(t *testing.T) {
	h := newHarness(t)
	h.c.Ingest(event("0xb2", model.KindNFT, "bob"))
	h.c.Ingest(event("0xb2", model.KindNative, "alice"))
	h.c.Ingest(event("0xB2", model.KindFungible, "alice", "carol"))

	o := h.next(t)
	require.NoError(t, o.Err)

	groups := h.verifier.verified()
	require.Len(t, groups, 1)
	assert.Equal(t, model.NewKindSet(model.KindNative, model.KindFungible, model.KindNFT), groups[0].KindsSeen)
	assert.Equal(t, []string{"bob", "alice", "carol"}, groups[0].Recipients)
	assert.Equal(t, model.StateVerifying, groups[0].State)
	assert.Equal(t, 1, h.dispatcher.count())
}

func TestConcurrentDuplicatesVerifyOnce(t *testing.T) {
	h := newHarnessWindow(t, 200*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.c.Ingest(event("0xdup", model.AllKinds[i%len(model.AllKinds)], "alice"))
		}(i)
	}
	wg.Wait()

	o := h.next(t)
	require.NoError(t, o.Err)
	assert.Equal(t, model.NewKindSet(model.AllKinds...), o.Group.KindsSeen)
	assert.Equal(t, []string{"alice"}, o.Group.Recipients)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.verifier.verified(), 1)
	h.verifier.mu.Lock()
	assert.Equal(t, 1, h.verifier.maxByHash["0xdup"])
	h.verifier.mu.Unlock()
	assert.Equal(t, 1, h.dispatcher.count())
}

func TestDistinctHashesAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.c.Ingest(event("0x01", model.KindNative, "alice"))
	h.c.Ingest(event("0x02", model.KindNative, "alice"))

	h.next(t)
	h.next(t)
	assert.Len(t, h.verifier.verified(), 2)
}

func TestAbandonedGroupIsNotNotified(t *testing.T) {
	h := newHarness(t)
	h.verifier.fail = true
	h.c.Ingest(event("0xdead", model.KindFungible, "alice"))

	o := h.next(t)
	assert.ErrorIs(t, o.Err, verify.ErrBudgetExhausted)
	assert.Equal(t, model.StateAbandoned, o.Group.State)
	assert.Nil(t, o.Record)
	assert.Equal(t, 0, h.dispatcher.count())
}

// Events after the window closed open a new group, verified only after the first settles.
func TestLateEventsWaitForInFlightGroup(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.verifier.gate = gate

	h.c.Ingest(event("0xe5", model.KindNative, "alice"))
	require.Eventually(t, func() bool { return len(h.verifier.verified()) == 1 }, time.Second, 5*time.Millisecond)

	h.c.Ingest(event("0xe5", model.KindInternal, "bob"))
	require.Eventually(t, func() bool { return h.c.Stats().Parked == 1 }, time.Second, 5*time.Millisecond)

	h.c.Ingest(event("0xe5", model.KindFungible, "carol"))
	require.Eventually(t, func() bool {
		s := h.c.Stats()
		return s.Collecting == 0 && s.Parked == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, h.verifier.verified(), 1, "parked group must not start while the first is in flight")

	close(gate)
	first := h.next(t)
	second := h.next(t)

	assert.NotEqual(t, first.Group.ID, second.Group.ID)
	assert.Equal(t, model.NewKindSet(model.KindNative), first.Group.KindsSeen)
	assert.Equal(t, model.NewKindSet(model.KindInternal, model.KindFungible), second.Group.KindsSeen)
	assert.Equal(t, []string{"bob", "carol"}, second.Group.Recipients)

	h.verifier.mu.Lock()
	assert.Equal(t, 1, h.verifier.maxByHash["0xe5"], "at most one verification per hash")
	h.verifier.mu.Unlock()
	assert.Equal(t, 2, h.dispatcher.count())
}

func TestInvalidEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	h.c.Ingest(event("", model.KindNative, "alice"))
	h.c.Ingest(event("0xf1", model.KindNative))
	h.c.Ingest(event("0xf2", model.KindNative, "", "  "))

	assert.Equal(t, Stats{}, h.c.Stats())
	time.Sleep(2 * window)
	assert.Empty(t, h.verifier.verified())
}

func TestShutdownCancelsVerification(t *testing.T) {
	h := newHarness(t)
	h.verifier.gate = make(chan struct{})

	h.c.Ingest(event("0xaa", model.KindNative, "alice"))
	require.Eventually(t, func() bool { return h.c.Stats().InFlight == 1 }, time.Second, 5*time.Millisecond)
	h.c.Ingest(event("0xbb", model.KindNative, "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.c.Shutdown(ctx))

	o := h.next(t)
	assert.ErrorIs(t, o.Err, context.Canceled)
	assert.Equal(t, model.StateVerifying, o.Group.State)
	assert.Equal(t, Stats{}, h.c.Stats())

	h.c.Ingest(event("0xcc", model.KindNative, "alice"))
	assert.Equal(t, 0, h.c.Stats().Collecting)
	assert.Equal(t, 0, h.dispatcher.count())
}
