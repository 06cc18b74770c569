// Package app wires configuration, logging and the engine into a
// runnable server process.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/surge-server/config"
	"github.com/searchktools/surge-server/core"
	"github.com/searchktools/surge-server/core/content"
)

// App is the application instance.
type App struct {
	cfg    *config.Config
	log    *logrus.Logger
	server *core.Server
}

// New validates cfg, moves the process into the served directory and
// builds the engine.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	// The root directory becomes the working directory; GET targets
	// and receive.bmp are resolved relative to it.
	if err := os.Chdir(cfg.Root); err != nil {
		return nil, fmt.Errorf("chdir %s: %w", cfg.Root, err)
	}

	server := core.New(core.Options{
		Port:        cfg.Port,
		Root:        ".",
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		IdleTimeout: cfg.IdleTimeout(),
		MaxEvents:   cfg.MaxEvents,
		Sink:        content.NewImageSink("receive.bmp", log),
		Logger:      log,
	})

	return &App{
		cfg:    cfg,
		log:    log,
		server: server,
	}, nil
}

// Run starts the application and blocks until the engine stops.
func (a *App) Run() error {
	// A peer resetting mid-write must not kill the process.
	signal.Ignore(syscall.SIGPIPE)

	go a.awaitSignal()

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.server.Metrics().Serve(a.cfg.MetricsAddr); err != nil {
				a.log.WithError(err).Error("metrics listener failed")
			}
		}()
	}

	return a.server.Run()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.WithField("signal", sig.String()).Info("shutting down")
	os.Exit(0)
}
