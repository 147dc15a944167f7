package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pollis22/voicecore/internal/app"
	"github.com/Pollis22/voicecore/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	res, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.Printf("cleanup failed: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	if err := app.Run(runCtx, res); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("shutdown complete")
}
