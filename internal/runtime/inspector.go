// Package runtime assembles and runs the inspection daemon: settings
// store, class-name mapping, codec set, pipeline, capture adapter,
// bridge client, and the HTTP server, with lifecycle management so the
// daemon can be embedded as well as run standalone.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aurascope/aurascope/internal/bridge"
	"github.com/aurascope/aurascope/internal/capture"
	"github.com/aurascope/aurascope/internal/codec"
	"github.com/aurascope/aurascope/internal/config"
	"github.com/aurascope/aurascope/internal/mapping"
	"github.com/aurascope/aurascope/internal/payload"
	"github.com/aurascope/aurascope/internal/pipeline"
	"github.com/aurascope/aurascope/internal/server"
	"github.com/aurascope/aurascope/internal/session"
	"github.com/aurascope/aurascope/internal/settings"
	"github.com/aurascope/aurascope/internal/settings/memory"
	"github.com/aurascope/aurascope/internal/settings/sqlite"
)

// Inspector is the assembled daemon. It owns every long-lived component
// and the HTTP listener; embedders construct one with New, Start it,
// and Shutdown it when done.
type Inspector struct {
	// Dependencies (injected via options)
	cfg          *config.Config
	logger       *slog.Logger
	store        settings.Store
	bridgeClient *bridge.Client

	// Internal state
	log     *session.Log
	swapper *mapping.Swapper
	adapter *capture.Adapter
	server  *http.Server

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	cancelWatch func()
	mu          sync.Mutex
}

// New creates an Inspector with the given options. Without options it
// loads config.yaml plus the environment and opens the SQLite settings
// store named there.
func New(opts ...Option) (*Inspector, error) {
	insp := &Inspector{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(insp); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if insp.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		insp.cfg = cfg
	}

	return insp, nil
}

// Start builds the component graph and begins serving. The listener
// binds loopback only; this daemon has no business on the network.
func (i *Inspector) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.ctx, i.cancel = context.WithCancel(ctx)

	if err := i.initSettings(); err != nil {
		return fmt.Errorf("init settings: %w", err)
	}

	current, err := i.store.Get(i.ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	i.swapper = mapping.NewSwapper(current.ClassNameMappingSource)

	if i.bridgeClient == nil && i.cfg.Bridge.BaseURL != "" {
		i.bridgeClient = bridge.NewClient(
			bridge.WithBaseURL(i.cfg.Bridge.BaseURL),
			bridge.WithTimeout(time.Duration(i.cfg.Bridge.TimeoutMs)*time.Millisecond),
			bridge.WithMaxBodyBytes(i.cfg.Capture.MaxBodyBytes),
			bridge.WithLogger(i.logger),
		)
	}

	i.log = session.NewLog(i.logger)

	processor := pipeline.New(pipeline.Config{
		Parser:   payload.New(i.logger),
		Codecs:   codec.NewSet(i.swapper, i.logger),
		Assigner: codec.NewAssigner(),
		Log:      i.log,
		Logger:   i.logger,
	})

	captureCfg := capture.Config{
		Sink:            processor,
		Logger:          i.logger,
		PendingCapacity: i.cfg.Capture.PendingCapacity,
	}
	if i.bridgeClient != nil {
		captureCfg.Bodies = i.bridgeClient
	}
	i.adapter = capture.New(captureCfg)

	if err := i.startServer(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Follow settings changes so mapping table swaps take effect
	// regardless of whether the API or an embedder wrote them.
	ch, cancelWatch := i.store.Subscribe(0)
	i.cancelWatch = cancelWatch
	go i.watchSettings(ch, current.ClassNameMappingSource)

	i.logger.Info("inspection daemon started",
		slog.Int("port", i.cfg.Server.Port),
		slog.Bool("bridge", i.bridgeClient != nil),
		slog.Int("mapping_entries", i.swapper.Current().Len()))

	return nil
}

// Shutdown stops the listener and releases every component.
func (i *Inspector) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.logger.Info("shutting down inspection daemon")

	if i.cancel != nil {
		i.cancel()
	}

	if i.server != nil {
		if err := i.server.Shutdown(ctx); err != nil {
			i.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if i.cancelWatch != nil {
		i.cancelWatch()
	}

	if i.store != nil {
		if err := i.store.Close(); err != nil {
			i.logger.Error("failed to close settings store", slog.String("error", err.Error()))
		}
	}

	i.logger.Info("inspection daemon shutdown complete")
	return nil
}

// initSettings opens the configured settings store unless an option
// already provided one.
func (i *Inspector) initSettings() error {
	if i.store != nil {
		return nil
	}
	if i.cfg.Settings.DBPath == "" {
		i.logger.Info("no settings db path, settings held in memory")
		i.store = memory.New()
		return nil
	}
	store, err := sqlite.New(i.cfg.Settings.DBPath)
	if err != nil {
		return err
	}
	i.logger.Debug("settings store opened", slog.String("path", i.cfg.Settings.DBPath))
	i.store = store
	return nil
}

// watchSettings swaps the class-name mapping table whenever a settings
// write changes its source blob.
func (i *Inspector) watchSettings(ch <-chan settings.Settings, lastSource string) {
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			if s.ClassNameMappingSource == lastSource {
				continue
			}
			lastSource = s.ClassNameMappingSource
			i.swapper.Replace(s.ClassNameMappingSource)
			i.logger.Info("class name mapping replaced",
				slog.Int("entries", i.swapper.Current().Len()))
		case <-i.ctx.Done():
			return
		}
	}
}

// startServer builds the HTTP surface and starts listening.
func (i *Inspector) startServer() error {
	apiCfg := server.Config{
		Log:      i.log,
		Adapter:  i.adapter,
		Settings: i.store,
		Timeout:  time.Duration(i.cfg.Server.WriteTimeout) * time.Second,
		Logger:   i.logger,
	}
	if i.bridgeClient != nil {
		apiCfg.Revealer = i.bridgeClient
	}
	api := server.New(apiCfg)

	i.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", i.cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  time.Duration(i.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(i.cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		i.logger.Info("HTTP server listening", slog.String("addr", i.server.Addr))
		if err := i.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			i.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}
