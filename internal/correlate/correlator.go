// Package correlate groups per-asset activity events into logical transactions and
// drives each group through verification and notification.
package correlate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletTracker/internal/metrics"
	"walletTracker/internal/model"
)

// DefaultWindow is how long a group collects sibling events before it is verified.
const DefaultWindow = 2 * time.Second

// Verifier resolves a closed group into a merged transaction.
type Verifier interface {
	Verify(ctx context.Context, group model.CorrelationGroup) (model.MergedTransaction, error)
}

// Dispatcher notifies a group's recipients about a merged transaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, group model.CorrelationGroup, tx model.MergedTransaction) model.NotificationRecord
}

// Outcome describes how a group settled. Tx and Record are nil unless the group was notified.
type Outcome struct {
	Group  model.CorrelationGroup
	Tx     *model.MergedTransaction
	Record *model.NotificationRecord
	Err    error
}

// Options configures a Correlator.
type Options struct {
	Window    time.Duration
	OnSettled func(Outcome)
	Metrics   *metrics.Metrics
}

// Stats is a snapshot of the correlator's bookkeeping.
type Stats struct {
	Collecting int `json:"collecting"`
	InFlight   int `json:"in_flight"`
	Parked     int `json:"parked"`
}

type collecting struct {
	group *model.CorrelationGroup
	timer *time.Timer
}

// Correlator owns every correlation group. At most one verification runs per
// transaction hash; a group that closes while its hash is in flight is parked
// and verified after the running one settles.
type Correlator struct {
	verifier   Verifier
	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	collecting map[string]*collecting
	inFlight   map[string]struct{}
	parked     map[string]*model.CorrelationGroup
}

func New(verifier Verifier, dispatcher Dispatcher, opts Options, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Correlator{
		verifier:   verifier,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		collecting: make(map[string]*collecting),
		inFlight:   make(map[string]struct{}),
		parked:     make(map[string]*model.CorrelationGroup),
	}
}

// Ingest adds an event to the collecting group for its hash, opening one if needed.
// It never blocks on I/O.
func (c *Correlator) Ingest(event model.ActivityEvent) {
	hash := strings.ToLower(strings.TrimSpace(event.TxHash))
	if hash == "" {
		c.drop(event, "empty_hash")
		return
	}
	event.Recipients = nonEmpty(event.Recipients)
	if len(event.Recipients) == 0 {
		c.drop(event, "no_recipients")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.drop(event, "shutdown")
		return
	}
	c.opts.Metrics.EventIngested(event.Kind.String())

	if entry, ok := c.collecting[hash]; ok {
		g := entry.group
		if g.TargetAddress != event.TargetAddress || g.BlockNum != event.BlockNum || g.Network != event.Network {
			c.logger.DPanic("event disagrees with its group",
				zap.String("group", g.ID),
				zap.String("tx_hash", hash),
				zap.String("group_target", g.TargetAddress),
				zap.String("event_target", event.TargetAddress),
				zap.Uint64("group_block", g.BlockNum),
				zap.Uint64("event_block", event.BlockNum),
			)
		}
		g.KindsSeen = g.KindsSeen.Add(event.Kind)
		g.AddRecipients(event.Recipients)
		c.logger.Debug("event joined group",
			zap.String("group", g.ID),
			zap.String("tx_hash", hash),
			zap.Stringer("kind", event.Kind),
		)
		return
	}

	g := &model.CorrelationGroup{
		ID:            uuid.NewString(),
		TxHash:        hash,
		Network:       event.Network,
		BlockNum:      event.BlockNum,
		TargetAddress: event.TargetAddress,
		KindsSeen:     model.NewKindSet(event.Kind),
		State:         model.StateCollecting,
		OpenedAt:      time.Now(),
	}
	g.AddRecipients(event.Recipients)

	id := g.ID
	c.collecting[hash] = &collecting{
		group: g,
		timer: time.AfterFunc(c.opts.Window, func() { c.closeGroup(hash, id) }),
	}
	c.opts.Metrics.GroupOpened()
	c.logger.Debug("group opened",
		zap.String("group", id),
		zap.String("tx_hash", hash),
		zap.Stringer("kind", event.Kind),
	)
}

func nonEmpty(recipients []string) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Correlator) drop(event model.ActivityEvent, reason string) {
	c.opts.Metrics.EventDropped(reason)
	c.logger.Warn("event dropped",
		zap.String("reason", reason),
		zap.String("tx_hash", event.TxHash),
		zap.Stringer("kind", event.Kind),
	)
}

// closeGroup ends the collection window of group id.
func (c *Correlator) closeGroup(hash, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.collecting[hash]
	if c.closed || !ok || entry.group.ID != id {
		return
	}
	delete(c.collecting, hash)

	g := entry.group
	g.Transition(model.StateVerifying)

	if _, busy := c.inFlight[hash]; !busy {
		c.start(g)
		return
	}

	if parked, ok := c.parked[hash]; ok {
		parked.KindsSeen = parked.KindsSeen.Union(g.KindsSeen)
		parked.AddRecipients(g.Recipients)
		c.logger.Info("late group folded into parked group",
			zap.String("group", g.ID),
			zap.String("parked", parked.ID),
			zap.String("tx_hash", hash),
		)
		return
	}
	c.parked[hash] = g
	c.logger.Info("group parked behind in-flight verification",
		zap.String("group", g.ID),
		zap.String("tx_hash", hash),
	)
}

// start must be called with c.mu held.
func (c *Correlator) start(g *model.CorrelationGroup) {
	c.inFlight[g.TxHash] = struct{}{}
	c.wg.Add(1)
	c.opts.Metrics.VerifyStarted()
	go c.run(g)
}

func (c *Correlator) run(g *model.CorrelationGroup) {
	defer c.wg.Done()

	log := c.logger.With(zap.String("group", g.ID), zap.String("tx_hash", g.TxHash))
	log.Debug("verifying group", zap.Stringer("kinds", g.KindsSeen))

	outcome := Outcome{}
	tx, err := c.verifier.Verify(c.ctx, g.Clone())
	switch {
	case err != nil && c.ctx.Err() != nil && errors.Is(err, context.Canceled):
		outcome.Err = err
		log.Info("verification cancelled")
	case err != nil:
		outcome.Err = err
		g.Transition(model.StateAbandoned)
		log.Warn("group abandoned",
			zap.String("target", g.TargetAddress),
			zap.Stringer("kinds", g.KindsSeen),
			zap.Error(err),
		)
	default:
		g.Transition(model.StateMerging)
		record := c.dispatcher.Dispatch(c.ctx, g.Clone(), tx)
		g.Transition(model.StateNotified)
		outcome.Tx = &tx
		outcome.Record = &record
		log.Info("group notified",
			zap.Stringer("category", tx.Category),
			zap.Stringer("missing", tx.KindsMissing),
			zap.Int("delivered", record.Delivered),
			zap.Int("failed", record.Failed),
		)
	}

	outcome.Group = g.Clone()
	c.settle(g, outcome)
}

func (c *Correlator) settle(g *model.CorrelationGroup, outcome Outcome) {
	c.opts.Metrics.GroupSettled(g.State.String(), g.OpenedAt)

	c.mu.Lock()
	delete(c.inFlight, g.TxHash)
	if next, ok := c.parked[g.TxHash]; ok {
		delete(c.parked, g.TxHash)
		if !c.closed {
			c.start(next)
		}
	}
	c.mu.Unlock()

	if c.opts.OnSettled != nil {
		c.opts.OnSettled(outcome)
	}
}

// Stats returns the number of collecting, in-flight and parked groups.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Collecting: len(c.collecting), InFlight: len(c.inFlight), Parked: len(c.parked)}
}

// Shutdown stops accepting events, drops groups that are still collecting or parked,
// cancels running verifications and waits for them until ctx is done.
func (c *Correlator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for hash, entry := range c.collecting {
		entry.timer.Stop()
		delete(c.collecting, hash)
	}
	dropped := len(c.parked)
	c.parked = make(map[string]*model.CorrelationGroup)
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("dropped parked groups on shutdown", zap.Int("count", dropped))
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
