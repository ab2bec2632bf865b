package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/conflict"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
	"github.com/tildaslashalef/notesync/internal/queue"
	"github.com/tildaslashalef/notesync/internal/remote"
	"github.com/tildaslashalef/notesync/internal/ulid"
)

var (
	// ErrSyncInProgress is returned when a pass is requested while one runs
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when a pass is requested while offline
	ErrOffline = errors.New("device is offline")
)

// Store is the local record store the orchestrator reconciles
type Store interface {
	List(ctx context.Context, ownerID string) ([]*note.Record, error)
	Put(ctx context.Context, rec *note.Record, opts ...note.PutOption) (*note.Record, error)
	Remove(ctx context.Context, id, ownerID string, opts ...note.PutOption) error
	Settle(ctx context.Context, rec *note.Record, pushedAt time.Time, sequenceID int64) (bool, error)
}

// Queue is the mutation queue drained by the push phase
type Queue interface {
	Drain(ctx context.Context) ([]*queue.Entry, error)
	Acknowledge(ctx context.Context, sequenceID int64) error
	Count(ctx context.Context) (int, error)
}

// Options tunes an Orchestrator
type Options struct {
	OwnerID         string
	Strategy        conflict.Strategy
	Interval        time.Duration // periodic pass while online; 0 disables the timer
	ErrorResetDelay time.Duration // error falls back to pending after this delay
	DebounceDelay   time.Duration // coalescing window for update mutations
}

// OptionsFromConfig builds Options from the sync configuration
func OptionsFromConfig(cfg config.SyncConfig) (Options, error) {
	strategy, err := conflict.ParseStrategy(cfg.Strategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		OwnerID:         cfg.OwnerID,
		Strategy:        strategy,
		Interval:        cfg.Interval,
		ErrorResetDelay: cfg.ErrorResetDelay,
		DebounceDelay:   cfg.DebounceDelay,
	}, nil
}

// configurable is implemented by gateways that know whether they can reach
// a remote target at all
type configurable interface {
	Configured() bool
}

// Orchestrator runs sync passes and tracks the sync state
type Orchestrator struct {
	store    Store
	queue    Queue
	logs     LogRepository
	opts     Options
	resolver conflict.Resolver
	logger   *loggy.Logger
	now      func() time.Time

	running      atomic.Bool
	online       atomic.Bool
	unconfigured atomic.Bool

	mu          stdsync.Mutex
	gateway     remote.Gateway
	state       State
	lastError   string
	view        []*note.Record
	subscribers map[int]func(Event)
	nextSub     int
	resetTimer  *time.Timer
	debounce    *time.Timer
	stopped     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	wg          stdsync.WaitGroup
}

// NewOrchestrator creates an orchestrator. logs may be nil. The orchestrator
// starts online in the pending state.
func NewOrchestrator(store Store, q Queue, gateway remote.Gateway, logs LogRepository, opts Options, logger *loggy.Logger) *Orchestrator {
	if !opts.Strategy.Valid() {
		opts.Strategy = conflict.DefaultStrategy
	}
	if opts.ErrorResetDelay <= 0 {
		opts.ErrorResetDelay = 5 * time.Second
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = time.Second
	}

	o := &Orchestrator{
		store:       store,
		queue:       q,
		logs:        logs,
		opts:        opts,
		resolver:    conflict.NewResolver(),
		logger:      logger.With("component", "sync", "owner_id", opts.OwnerID),
		now:         time.Now,
		gateway:     gateway,
		state:       StatePending,
		subscribers: make(map[int]func(Event)),
	}
	o.online.Store(true)
	return o
}

// SetClock replaces the clock used for timestamps and conflict stamping
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	o.resolver = conflict.Resolver{Now: now}
}

// SetGateway swaps the remote gateway, for instance after the server
// settings changed, and forgets an earlier unconfigured verdict
func (o *Orchestrator) SetGateway(gateway remote.Gateway) {
	o.mu.Lock()
	o.gateway = gateway
	o.mu.Unlock()
	o.unconfigured.Store(false)
}

func (o *Orchestrator) remote() remote.Gateway {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gateway
}

// State returns the current sync state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the message of the last failed pass
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// Online reports the last known connectivity
func (o *Orchestrator) Online() bool {
	return o.online.Load()
}

// Snapshot returns a copy of the records loaded at the end of the last pass
func (o *Orchestrator) Snapshot() []*note.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	records := make([]*note.Record, 0, len(o.view))
	for _, rec := range o.view {
		records = append(records, rec.Clone())
	}
	return records
}

// Subscribe registers fn for lifecycle events and returns a function that
// removes it. Events are delivered synchronously.
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = o.now().UTC()
	}

	o.mu.Lock()
	subs := make([]func(Event), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// setState moves to a new state. Entering the error state arms the timer
// that demotes it to pending, unless the orchestrator has been stopped.
func (o *Orchestrator) setState(to State, message string) {
	o.mu.Lock()
	from := o.state
	o.state = to
	switch to {
	case StateError:
		o.lastError = message
		if o.resetTimer != nil {
			o.resetTimer.Stop()
			o.resetTimer = nil
		}
		if !o.stopped {
			o.resetTimer = time.AfterFunc(o.opts.ErrorResetDelay, o.demoteError)
		}
	case StateSynced:
		o.lastError = ""
	}
	o.mu.Unlock()

	if from != to {
		o.emit(Event{Kind: EventStateChanged, From: from, To: to, Message: message})
	}
}

func (o *Orchestrator) demoteError() {
	o.mu.Lock()
	if o.state != StateError {
		o.mu.Unlock()
		return
	}
	o.state = StatePending
	o.mu.Unlock()

	o.logger.Debug("Error state expired, retry permitted")
	o.emit(Event{Kind: EventStateChanged, From: StateError, To: StatePending})
}

// acquire takes the reentrancy guard
func (o *Orchestrator) acquire() error {
	if !o.online.Load() {
		if !o.running.Load() {
			o.setState(StatePending, "")
		}
		return ErrOffline
	}

	if gw, ok := o.remote().(configurable); ok && !gw.Configured() {
		o.unconfigured.Store(true)
	}
	if o.unconfigured.Load() {
		return fmt.Errorf("%w: %w", ErrOffline, remote.ErrUnconfigured)
	}

	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	return nil
}

func (o *Orchestrator) release() {
	o.running.Store(false)
}

// Sync runs a full pass: push, pull, then a reload of the local view. A call
// made while another pass runs returns ErrSyncInProgress without doing
// anything; callers that need a pass must trigger again later.
func (o *Orchestrator) Sync(ctx context.Context, trigger Trigger) (*Result, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	return o.run(ctx, trigger)
}

// Push drains the queue once without pulling
func (o *Orchestrator) Push(ctx context.Context) (PushResult, error) {
	if err := o.acquire(); err != nil {
		return PushResult{}, err
	}
	defer o.release()

	res, err := o.push(ctx, o.logger)
	o.markUnconfigured(err)
	return res, err
}

// Pull reconciles the remote listing into the local store without pushing
func (o *Orchestrator) Pull(ctx context.Context) (PullResult, error) {
	if err := o.acquire(); err != nil {
		return PullResult{}, err
	}
	defer o.release()

	res, err := o.pull(ctx, o.logger)
	o.markUnconfigured(err)
	return res, err
}

func (o *Orchestrator) markUnconfigured(err error) {
	if remote.IsUnconfigured(err) {
		o.unconfigured.Store(true)
	}
}

func (o *Orchestrator) run(ctx context.Context, trigger Trigger) (*Result, error) {
	passID := ulid.PassID()
	logger := o.logger.With("pass_id", passID, "trigger", trigger)
	ctx = loggy.WithRequestID(ctx, passID)

	started := o.now().UTC()
	syncLog := NewSyncLog(ulid.SyncID(), trigger, started)

	o.setState(StateSyncing, "")
	o.emit(Event{Kind: EventSyncStarted, PassID: passID, Trigger: trigger, At: started})
	logger.Info("Sync pass started")

	var pull PullResult
	push, err := o.push(ctx, logger)
	if err == nil {
		pull, err = o.pull(ctx, logger)
	}

	var records []*note.Record
	var pending int
	if err == nil {
		records, pending, err = o.reload(ctx)
	}

	completed := o.now().UTC()
	if err != nil {
		syncLog.MarkFailed(push, err.Error(), completed)
		o.saveLog(ctx, logger, syncLog)

		if remote.IsUnconfigured(err) {
			o.unconfigured.Store(true)
			logger.Warn("Remote store is not configured, staying offline", "error", err)
			o.setState(StatePending, "")
			o.emit(Event{Kind: EventSyncFailed, PassID: passID, Trigger: trigger, Push: push, Message: err.Error()})
			return nil, fmt.Errorf("%w: %w", ErrOffline, err)
		}

		logger.Error("Sync pass failed", "error", err)
		o.setState(StateError, err.Error())
		o.emit(Event{Kind: EventSyncFailed, PassID: passID, Trigger: trigger, Push: push, Message: err.Error()})
		return nil, err
	}

	syncLog.MarkSuccessful(push, pull, completed)
	o.saveLog(ctx, logger, syncLog)

	next := StateSynced
	if pending > 0 || !o.online.Load() {
		next = StatePending
	}
	o.setState(next, "")

	result := &Result{
		PassID:      passID,
		Trigger:     trigger,
		Push:        push,
		Pull:        pull,
		Records:     records,
		StartedAt:   started,
		CompletedAt: completed,
	}
	o.emit(Event{Kind: EventSyncCompleted, PassID: passID, Trigger: trigger, Push: push, Pull: pull, At: completed})

	logger.Info("Sync pass completed",
		"synced", push.Synced,
		"failed", push.Failed,
		"conflicts", push.Conflicts,
		"pulled", pull.Pulled(),
		"removed", pull.Removed,
		"duration", result.Duration())

	return result, nil
}

func (o *Orchestrator) saveLog(ctx context.Context, logger *loggy.Logger, log *SyncLog) {
	if o.logs == nil {
		return
	}
	if err := o.logs.CreateSyncLog(ctx, log); err != nil {
		logger.Warn("Failed to record sync log", "error", err)
	}
}

// push drains the queue in sequence order. Per-entry failures are tallied and
// never abort the loop; once an entry for a record is retained, later entries
// for the same record wait for the next pass so its history stays in order.
// A record's remote version confirmed by an earlier entry of this pass is the
// base for its later entries.
func (o *Orchestrator) push(ctx context.Context, logger *loggy.Logger) (PushResult, error) {
	var res PushResult

	entries, err := o.queue.Drain(ctx)
	if err != nil {
		return res, fmt.Errorf("draining mutation queue: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}

	gw := o.remote()
	blocked := make(map[string]bool)
	confirmed := make(map[string]time.Time)

	for _, entry := range entries {
		id := entry.Record.ID
		if blocked[id] {
			res.Skipped++
			continue
		}
		if base, ok := confirmed[id]; ok {
			entry.Record.BaseModifiedAt = base
		}

		stored, conflicted, err := o.pushEntry(ctx, gw, entry, logger)
		if err == nil {
			if stored != nil {
				confirmed[id] = stored.ModifiedAt
			} else {
				delete(confirmed, id)
			}
			if conflicted {
				res.Conflicts++
			} else {
				res.Synced++
			}
			continue
		}

		if remote.IsUnconfigured(err) {
			return res, err
		}

		res.Failed++
		entryLogger := logger.With("sequence_id", entry.SequenceID, "op", entry.Operation, "id", id)

		if remote.IsNotFound(err) && entry.Operation != note.OpDelete {
			entryLogger.Warn("Remote record is gone, dropping queued mutation")
			if ackErr := o.queue.Acknowledge(ctx, entry.SequenceID); ackErr != nil {
				entryLogger.Error("Failed to drop queued mutation", "error", ackErr)
				blocked[id] = true
			}
			continue
		}

		blocked[id] = true
		if remote.IsTransient(err) {
			entryLogger.Info("Push deferred to next pass", "error", err)
		} else {
			entryLogger.Warn("Push failed", "error", err)
		}
	}

	logger.Debug("Push phase finished",
		"entries", len(entries),
		"synced", res.Synced,
		"failed", res.Failed,
		"conflicts", res.Conflicts,
		"skipped", res.Skipped)

	return res, nil
}

// pushEntry applies one queue entry remotely and settles it locally. It
// returns the record the remote ended up holding, nil after a delete, and
// reports whether a conflict was resolved.
//
// The remote copy is a concurrent edit when it is not the version the entry
// was based on: another device wrote it after this one last confirmed it.
func (o *Orchestrator) pushEntry(ctx context.Context, gw remote.Gateway, entry *queue.Entry, logger *loggy.Logger) (*note.Record, bool, error) {
	rec := &entry.Record

	if entry.Operation == note.OpDelete {
		if err := gw.Delete(ctx, rec.ID, rec.OwnerID); err != nil {
			return nil, false, err
		}
		return nil, false, o.queue.Acknowledge(ctx, entry.SequenceID)
	}

	current, err := gw.FetchOne(ctx, rec.ID, rec.OwnerID)
	if err != nil {
		return nil, false, err
	}

	concurrent := current != nil &&
		(rec.BaseModifiedAt.IsZero() || !current.ModifiedAt.Equal(rec.BaseModifiedAt))

	if concurrent && conflict.DetectConflict(rec, current) {
		resolved := o.resolver.Resolve(rec, current, o.opts.Strategy)
		if o.opts.Strategy == conflict.Manual {
			logger.Warn("Conflict kept for manual review",
				"id", rec.ID,
				"local_modified_at", rec.ModifiedAt,
				"remote_modified_at", current.ModifiedAt)
		}

		stored, err := gw.Update(ctx, resolved)
		if err != nil {
			return nil, false, err
		}
		if _, err := o.store.Settle(ctx, stored, rec.ModifiedAt, entry.SequenceID); err != nil {
			return nil, false, fmt.Errorf("settling resolved record: %w", err)
		}

		logger.Info("Conflict resolved",
			"id", rec.ID,
			"strategy", o.opts.Strategy,
			"base_modified_at", rec.BaseModifiedAt,
			"local_modified_at", rec.ModifiedAt,
			"remote_modified_at", current.ModifiedAt)
		return stored, true, nil
	}

	var stored *note.Record
	switch {
	case concurrent:
		// same content already stored remotely
		stored = current
	case current != nil:
		stored, err = gw.Update(ctx, rec)
	case entry.Operation == note.OpCreate:
		stored, err = gw.Create(ctx, rec)
	default:
		stored, err = gw.Update(ctx, rec)
	}
	if err != nil {
		return nil, false, err
	}

	if _, err := o.store.Settle(ctx, stored, rec.ModifiedAt, entry.SequenceID); err != nil {
		return nil, false, fmt.Errorf("settling pushed record: %w", err)
	}
	return stored, false, nil
}

// pull folds the remote listing into the local store. A failed fetch leaves
// the store untouched and is not an error. Records with unsynced local state
// or queued mutations are never overwritten, inserted or removed.
func (o *Orchestrator) pull(ctx context.Context, logger *loggy.Logger) (PullResult, error) {
	var res PullResult
	owner := o.opts.OwnerID

	remoteRecords, err := o.remote().FetchAll(ctx, owner)
	if err != nil {
		if remote.IsUnconfigured(err) {
			return res, err
		}
		logger.Warn("Fetching remote records failed, skipping pull", "error", err)
		return res, nil
	}

	localRecords, err := o.store.List(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("listing local records: %w", err)
	}

	entries, err := o.queue.Drain(ctx)
	if err != nil {
		return res, fmt.Errorf("draining mutation queue: %w", err)
	}
	pending := make(map[string]bool, len(entries))
	for _, entry := range entries {
		pending[entry.Record.ID] = true
	}

	local := make(map[string]*note.Record, len(localRecords))
	for _, rec := range localRecords {
		local[rec.ID] = rec
	}

	seen := make(map[string]bool, len(remoteRecords))
	for _, remoteRec := range remoteRecords {
		if remoteRec.OwnerID == "" {
			remoteRec.OwnerID = owner
		}
		if remoteRec.OwnerID != owner {
			continue
		}
		seen[remoteRec.ID] = true

		localRec, exists := local[remoteRec.ID]
		switch {
		case pending[remoteRec.ID] || (exists && !localRec.Synced):
			res.Skipped++
			continue
		case exists && !remoteRec.ModifiedAt.After(localRec.ModifiedAt):
			continue
		}

		if _, err := o.store.Put(ctx, remoteRec, note.Confirmed()); err != nil {
			res.Failed++
			logger.Warn("Failed to apply remote record", "id", remoteRec.ID, "error", err)
			continue
		}
		if exists {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	for _, localRec := range localRecords {
		if seen[localRec.ID] {
			continue
		}
		if !localRec.Synced || pending[localRec.ID] {
			res.Skipped++
			continue
		}

		if err := o.store.Remove(ctx, localRec.ID, owner, note.Confirmed()); err != nil {
			res.Failed++
			logger.Warn("Failed to remove remotely deleted record", "id", localRec.ID, "error", err)
			continue
		}
		res.Removed++
	}

	logger.Debug("Pull phase finished",
		"remote", len(remoteRecords),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"removed", res.Removed,
		"skipped", res.Skipped)

	return res, nil
}

// reload refreshes the in-memory view and returns it with the number of
// local changes still waiting for the remote
func (o *Orchestrator) reload(ctx context.Context) ([]*note.Record, int, error) {
	records, err := o.store.List(ctx, o.opts.OwnerID)
	if err != nil {
		return nil, 0, fmt.Errorf("reloading records: %w", err)
	}

	queued, err := o.queue.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting queued mutations: %w", err)
	}

	pending := queued
	for _, rec := range records {
		if !rec.Synced {
			pending++
		}
	}

	o.mu.Lock()
	o.view = records
	o.mu.Unlock()

	snapshot := make([]*note.Record, 0, len(records))
	for _, rec := range records {
		snapshot = append(snapshot, rec.Clone())
	}
	return snapshot, pending, nil
}

// Start arms the periodic timer and enables RequestSync, NotifyMutation and
// connectivity triggered passes until Stop is called or ctx ends. Passes
// started this way keep ctx's values but not its cancellation: once begun a
// pass runs to completion.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx, o.cancel = runCtx, cancel
	o.stopped = false
	if o.opts.Interval > 0 {
		o.wg.Add(1)
		go o.tick(runCtx)
	}
	o.mu.Unlock()

	o.logger.Info("Sync orchestrator started", "interval", o.opts.Interval)
}

// Stop refuses new triggers, waits for an in-flight pass to finish and then
// clears every timer. No timer fires after Stop returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel, o.runCtx = nil, nil
	o.stopped = true
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		o.wg.Wait()
	}

	o.mu.Lock()
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
	o.mu.Unlock()

	if cancel != nil {
		o.logger.Info("Sync orchestrator stopped")
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.online.Load() && !o.running.Load() {
				o.runTriggered(context.WithoutCancel(ctx), TriggerTimer)
			}
		}
	}
}

// RequestSync starts a pass in the background. It reports false when the
// orchestrator is not started; a pass already running makes the request a
// no-op.
func (o *Orchestrator) RequestSync(trigger Trigger) bool {
	o.mu.Lock()
	ctx := o.runCtx
	if ctx == nil || ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.runTriggered(context.WithoutCancel(ctx), trigger)
	}()
	return true
}

func (o *Orchestrator) runTriggered(ctx context.Context, trigger Trigger) {
	_, err := o.Sync(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		o.logger.Debug("Sync trigger dropped", "trigger", trigger, "reason", err)
	default:
		o.logger.Debug("Triggered sync failed", "trigger", trigger, "error", err)
	}
}

// NotifyMutation reacts to a local mutation. Updates are debounced so a
// burst of edits leads to one pass; creates and deletes sync right away.
func (o *Orchestrator) NotifyMutation(op note.Operation, id string) {
	if op != note.OpUpdate {
		o.RequestSync(TriggerMutation)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runCtx == nil {
		return
	}
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounce = time.AfterFunc(o.opts.DebounceDelay, func() {
		o.RequestSync(TriggerMutation)
	})
}

// SetOnline records a connectivity change. Coming back online triggers a
// pass; going offline moves an idle orchestrator to pending.
func (o *Orchestrator) SetOnline(online bool) {
	if prev := o.online.Swap(online); prev == online {
		return
	}
	o.logger.Info("Connectivity changed", "online", online)

	if !online {
		if !o.running.Load() {
			o.setState(StatePending, "")
		}
		return
	}
	o.RequestSync(TriggerConnectivity)
}

// WatchConnectivity pings the remote every interval and feeds SetOnline
// until ctx ends. An unconfigured remote counts as offline.
func (o *Orchestrator) WatchConnectivity(ctx context.Context, ping func(context.Context) error, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := ping(pingCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.markUnconfigured(err)
			o.logger.Debug("Connectivity check failed", "error", err)
		}
		o.SetOnline(err == nil)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
