package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/voicecanvas/internal/adapters/portaudio"
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/rest"
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/sqlite"
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/vision"
	"github.com/ewilliams-labs/voicecanvas/internal/config"
	"github.com/ewilliams-labs/voicecanvas/internal/core/services"
	"github.com/ewilliams-labs/voicecanvas/internal/worker"
)

func main() {
	// 1. Configuration (Environment Variables)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 2. Initialize "Driven" Adapters (The Tools)
	// -- History Adapter
	dbAdapter, err := sqlite.NewAdapter(cfg.HistoryDB)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	defer dbAdapter.Close()

	pool := worker.NewPool(dbAdapter, cfg.HistoryQueue)
	pool.Start(cfg.HistoryWorkers)
	defer pool.Stop()

	// -- Vision Adapter
	selection := vision.FromConfig(cfg)

	// -- Microphone Adapter
	mic := portaudio.Mic{SampleRate: cfg.AudioSampleRate, RingSize: cfg.AudioWindow * 4}

	// 3. Initialize Core Logic
	session, err := services.NewSession(services.SessionConfig{
		Width:          cfg.CanvasWidth,
		Height:         cfg.CanvasHeight,
		Profile:        cfg.MappingProfile,
		DefaultModel:   selection.DefaultModel,
		Window:         cfg.AudioWindow,
		Tick:           cfg.AudioTick,
		SplatterTTL:    cfg.SplatterTTL,
		RequestTimeout: cfg.RequestTimeout,
		SnapshotMaxDim: cfg.SnapshotMaxDim,
	}, services.SessionDeps{
		Analyzer: selection.Analyzer,
		Source:   mic,
		History:  pool,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create session: %v", err)
	}
	defer session.Close()

	// 4. Initialize "Driving" Adapter (The Interface)
	handler := rest.NewHandler(session, dbAdapter, selection.Models)

	// 5. Start the Server
	log.Println("------------------------------------------------")
	log.Printf("🎨 voicecanvas API is running on http://localhost%s (%s, %s)", cfg.Addr(), cfg.AnalyzerProvider, selection.DefaultModel)
	log.Println("------------------------------------------------")

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		session.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
	}
}
