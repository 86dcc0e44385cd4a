package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
)

// Connectivity reports server reachability and its transitions.
type Connectivity interface {
	IsConnected() bool
	Subscribe(fn func(connected bool)) (unsubscribe func())
}

// Authenticator reports whether a usable credential is held, refreshing
// it when needed.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// Options wires an Engine. DB, Client, Conn and Auth are required.
type Options struct {
	DB      *database.DB
	Client  *remote.Client
	Conn    Connectivity
	Auth    Authenticator
	Session *Session
	// Policy overrides Config.ConflictResolution.
	Policy ConflictPolicy
	Bus    *events.Bus
	Log    logging.Logger
	Config *config.SyncConfig
}

// Engine runs synchronization cycles between the local store and the
// server.
type Engine struct {
	db      *database.DB
	conn    Connectivity
	auth    Authenticator
	session *Session
	bus     *events.Bus
	log     logging.Logger
	config  *config.SyncConfig

	syncers map[models.Kind]kindSyncer

	mu          sync.Mutex
	running     bool
	stopChan    chan struct{}
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewEngine builds an engine and restores the last successful sync time
// from the local store.
func NewEngine(opts Options) (*Engine, error) {
	if opts.DB == nil || opts.Client == nil || opts.Conn == nil || opts.Auth == nil {
		return nil, errors.New("sync engine: DB, Client, Conn and Auth are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.SyncConfig{ConflictResolution: config.ConflictServerWins}
	}
	policy := opts.Policy
	if policy == nil {
		p, err := PolicyFor(cfg.ConflictResolution)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("component", "sync")
	session := opts.Session
	if session == nil {
		session = NewSession()
	}

	e := &Engine{
		db:      opts.DB,
		conn:    opts.Conn,
		auth:    opts.Auth,
		session: session,
		bus:     opts.Bus,
		log:     log,
		config:  cfg,
		syncers: map[models.Kind]kindSyncer{
			models.KindSuppliers: newReconciler[models.Supplier](opts.DB, opts.Client, policy, log),
			models.KindCustomers: newReconciler[models.Customer](opts.DB, opts.Client, policy, log),
			models.KindVehicles:  newReconciler[models.Vehicle](opts.DB, opts.Client, policy, log),
			models.KindProducts:  newReconciler[models.Product](opts.DB, opts.Client, policy, log),
			models.KindStock:     newReconciler[models.StockLevel](opts.DB, opts.Client, policy, log),
			models.KindShipments: newReconciler[models.Shipment](opts.DB, opts.Client, policy, log),
		},
	}

	last, err := opts.DB.LastSyncTime(context.Background())
	if err != nil {
		log.Warn(context.Background(), "could not restore last sync time", "err", err)
	} else {
		session.setLastSync(last)
	}
	return e, nil
}

func (e *Engine) IsSyncing() bool         { return e.session.IsSyncing() }
func (e *Engine) LastSyncTime() time.Time { return e.session.LastSyncTime() }

// SyncAll reconciles every enabled kind in dependency order.
func (e *Engine) SyncAll(ctx context.Context) Result {
	var kinds []models.Kind
	for _, k := range models.Kinds() {
		if e.config.KindEnabled(k.String()) {
			kinds = append(kinds, k)
		}
	}
	return e.run(ctx, kinds, true)
}

// SyncKind reconciles a single kind. It does not advance LastSyncTime.
func (e *Engine) SyncKind(ctx context.Context, kind models.Kind) Result {
	if _, ok := e.syncers[kind]; !ok {
		return failed(time.Now().UTC(), fmt.Errorf("unknown entity kind %q", kind))
	}
	return e.run(ctx, []models.Kind{kind}, false)
}

func (e *Engine) SyncSuppliers(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindSuppliers)
}

func (e *Engine) SyncCustomers(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindCustomers)
}

func (e *Engine) SyncVehicles(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindVehicles)
}

func (e *Engine) SyncProducts(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindProducts)
}

func (e *Engine) SyncStock(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindStock)
}

func (e *Engine) SyncShipments(ctx context.Context) Result {
	return e.SyncKind(ctx, models.KindShipments)
}

func (e *Engine) run(ctx context.Context, kinds []models.Kind, full bool) Result {
	started := time.Now().UTC()
	if !e.session.TryBegin() {
		return failed(started, ErrAlreadySyncing)
	}
	defer e.session.End()

	if !e.conn.IsConnected() {
		return e.rejected(ctx, started, ErrOffline)
	}
	if !e.auth.IsAuthenticated(ctx) {
		return e.rejected(ctx, started, ErrUnauthenticated)
	}

	e.bus.SyncStatus(events.SyncStatus{State: events.SyncSyncing})
	e.log.Info(ctx, "sync cycle started", "kinds", len(kinds))

	res := Result{StartedAt: started}
	for _, k := range kinds {
		kr := e.syncers[k].run(ctx)
		e.record(ctx, kr)
		if kr.Created+kr.Updated+kr.Conflicts+kr.Purged+kr.Downloaded+kr.Refreshed+kr.Removed > 0 {
			e.bus.DataChanged(k)
		}
		if !kr.OK() {
			e.log.Warn(ctx, "kind reconciled with errors", "kind", k, "errors", len(kr.Errors))
		}
		res.add(kr)
	}
	res.finish()

	if !res.Success {
		e.log.Warn(ctx, "sync cycle finished with errors", "duration", res.Duration, "message", res.Message)
		e.bus.SyncStatus(events.SyncStatus{State: events.SyncFailed, Message: res.Message})
		return res
	}
	if full {
		at := time.Now().UTC()
		e.session.setLastSync(at)
		if err := e.db.SaveLastSyncTime(ctx, at); err != nil {
			e.log.Error(ctx, "save last sync time", "err", err)
		}
	}
	e.log.Info(ctx, "sync cycle completed", "duration", res.Duration)
	e.bus.SyncStatus(events.SyncStatus{State: events.SyncCompleted})
	return res
}

func (e *Engine) rejected(ctx context.Context, started time.Time, err error) Result {
	e.log.Debug(ctx, "sync cycle skipped", "reason", err)
	e.bus.SyncStatus(events.SyncStatus{State: events.SyncFailed, Message: err.Error()})
	return failed(started, err)
}

// record persists a kind's outcome. Failing to do so does not fail the
// cycle.
func (e *Engine) record(ctx context.Context, kr KindResult) {
	status := models.SyncStatusCompleted
	switch {
	case kr.fatal:
		status = models.SyncStatusFailed
	case !kr.OK():
		status = models.SyncStatusPartial
	}
	meta := &models.SyncMetadata{
		Kind:       kr.Kind,
		LastSyncAt: time.Now().UTC(),
		Status:     status,
		Uploaded:   kr.Uploaded(),
		Downloaded: kr.Downloaded + kr.Refreshed,
		Deleted:    kr.Removed,
	}
	if err := e.db.SaveSyncMetadata(ctx, meta, kr.Errors); err != nil {
		e.log.Error(ctx, "save sync metadata", "kind", kr.Kind, "err", err)
	}
}

// Start launches the background triggers: a cycle on reconnect, a
// periodic cycle and an optional one at startup.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("sync engine already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	stop := e.stopChan

	e.bus.SyncStatus(events.SyncStatus{State: events.SyncIdle})

	if e.config.SyncOnReconnect {
		e.unsubscribe = e.conn.Subscribe(func(connected bool) {
			if !connected {
				return
			}
			e.spawn(func() {
				if !e.auth.IsAuthenticated(ctx) {
					return
				}
				e.log.Info(ctx, "connection restored, syncing")
				e.SyncAll(ctx)
			})
		})
	}

	if e.config.AutoSyncEnabled && e.config.Interval() > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.autoSyncLoop(ctx, stop)
		}()
	}

	if e.config.SyncOnStartup {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.SyncAll(ctx)
		}()
	}

	e.log.Info(ctx, "sync engine started",
		"auto", e.config.AutoSyncEnabled, "interval", e.config.Interval())
	return nil
}

// spawn runs fn in a tracked goroutine unless the engine is stopped.
func (e *Engine) spawn(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Stop ends the background triggers and waits for running cycles.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	close(e.stopChan)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info(context.Background(), "sync engine stopped")
}

func (e *Engine) autoSyncLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(e.config.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res := e.SyncAll(ctx)
			if errors.Is(res.Err(), ErrAlreadySyncing) {
				e.log.Debug(ctx, "auto-sync skipped, cycle in progress")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
