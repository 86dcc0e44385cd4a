// Command fieldsync runs the offline-first field client: the local store,
// the background synchronization engine and the local status API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xelth-com/eckwmsfield/internal/auth"
	"github.com/xelth-com/eckwmsfield/internal/buildinfo"
	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/connectivity"
	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/dataservice"
	"github.com/xelth-com/eckwmsfield/internal/events"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/remote"
	"github.com/xelth-com/eckwmsfield/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first warehouse field client",
	Long: `fieldsync keeps a local copy of the warehouse data on the device and
reconciles it with the central server whenever it is reachable.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Version = buildinfo.Current().String()
	rootCmd.AddCommand(serveCmd, syncCmd, loginCmd, logoutCmd, statusCmd, listCmd, deleteCmd, devServerCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wired field client.
type app struct {
	cfg     *config.Config
	log     *logging.SlogLogger
	closer  io.Closer
	db      *database.DB
	bus     *events.Bus
	session *auth.Session
	monitor *connectivity.Monitor
	engine  *sync.Engine
	data    *dataservice.Services
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log, closer := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		closer.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	bus := events.NewBus()
	// the session talks to /auth without a bearer token
	session := auth.NewSession(db, remote.New(cfg.ServerURL, cfg.RequestTimeout, nil, log), bus, log)
	if err := session.Restore(ctx); err != nil {
		log.Warn(ctx, "could not restore session", "err", err)
	}
	client := remote.New(cfg.ServerURL, cfg.RequestTimeout, session, log)
	monitor := connectivity.NewMonitor(cfg.ServerURL, cfg.ProbeInterval, cfg.RequestTimeout, bus, log)

	engine, err := sync.NewEngine(sync.Options{
		DB:     db,
		Client: client,
		Conn:   monitor,
		Auth:   session,
		Bus:    bus,
		Log:    log,
		Config: cfg.Sync,
	})
	if err != nil {
		db.Close()
		closer.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		closer:  closer,
		db:      db,
		bus:     bus,
		session: session,
		monitor: monitor,
		engine:  engine,
		data: dataservice.New(dataservice.Deps{
			DB: db, Client: client, Conn: monitor, Auth: session, Bus: bus, Log: log,
		}),
	}, nil
}

// Close releases the store and the log file.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error(context.Background(), "close local store", "err", err)
	}
	a.closer.Close()
}
