package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const janitorInterval = 5 * time.Second

// Run serves the API until ctx is cancelled, then drains connections within
// the configured shutdown timeout.
func Run(ctx context.Context, res *BuildResult) error {
	httpServer := &http.Server{
		Addr:    res.Config.BindAddr,
		Handler: res.API.Router(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	res.Sessions.StartJanitor(runCtx, janitorInterval)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Printf("server listening on %s", res.Config.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), res.Config.ShutdownTimeout)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
			return httpServer.Close()
		}
		return nil
	})
	return g.Wait()
}
