package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/eckwmsfield/internal/handlers"
	"github.com/xelth-com/eckwmsfield/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync engine and the local status API",
	Long: `Run the field client in the foreground.

The connectivity monitor probes the server, the sync engine reconciles on
reconnect and on its interval, and the status API listens on FIELD_API_PORT
with a websocket event feed at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		hub := websocket.NewHub(a.log)
		go hub.Run(ctx)
		feed, unsubscribe := a.bus.Subscribe()
		defer unsubscribe()
		go hub.Forward(ctx, feed)

		router := handlers.NewRouter(handlers.NewSyncHandler(a.engine, a.monitor, a.session, a.db), hub, a.log)
		server := &http.Server{
			Addr:              ":" + a.cfg.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// engine first so it sees the monitor's first transition
		if err := a.engine.Start(ctx); err != nil {
			return err
		}
		a.monitor.Start(ctx)

		errCh := make(chan error, 1)
		go func() {
			a.log.Info(ctx, "status API listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err = <-errCh:
		}

		a.log.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			a.log.Error(shutdownCtx, "server shutdown", "err", serr)
		}
		a.monitor.Stop()
		a.engine.Stop()
		return err
	},
}
