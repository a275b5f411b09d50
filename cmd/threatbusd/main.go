// Command threatbusd runs the threatbus dispatch core as a standalone
// daemon: it loads configuration, wires structured logging, metrics and
// tracing, starts the Snapshot Store, and instantiates whichever app
// adapter and backbone are named in configuration via the explicit
// registration table in internal/registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adisbladis/threatbus/internal/appadapter"
	"github.com/adisbladis/threatbus/internal/backbone"
	"github.com/adisbladis/threatbus/internal/config"
	"github.com/adisbladis/threatbus/internal/dispatch"
	"github.com/adisbladis/threatbus/internal/model"
	"github.com/adisbladis/threatbus/internal/registry"
	"github.com/adisbladis/threatbus/internal/snapshot"
	"github.com/adisbladis/threatbus/internal/telemetry"
)

// backboneTopics are the canonical topics bridged between the local
// dispatch core and a configured Backbone in both directions.
var backboneTopics = []string{
	model.TopicIntel,
	model.TopicSighting,
	model.TopicSnapshotRequest,
	model.TopicSnapshotEnvelope,
}

func newRunCommand() *cobra.Command {
	var appName, backboneName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the threatbus dispatch core, its snapshot store, and configured adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), appName, backboneName)
		},
	}
	cmd.Flags().StringVar(&appName, "app", "zeek-websocket", "registered app adapter to start")
	cmd.Flags().StringVar(&backboneName, "backbone", "", "registered backbone to start (empty disables cross-process transport)")
	return cmd
}

func run(ctx context.Context, appName, backboneName string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("threatbusd: logger init: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if err := config.ApplyVaultOverlay(&cfg); err != nil {
		logger.Fatal("vault overlay failed", zap.Error(err))
	}

	_, tpShutdown, err := telemetry.InitTracerProvider(ctx, "threatbusd")
	if err != nil {
		logger.Fatal("tracer init failed", zap.Error(err))
	}
	defer tpShutdown(context.Background())

	metricsServer := telemetry.Serve(cfg.MetricsAddr)
	defer metricsServer.Close()

	d := dispatch.New(logger, telemetry.NewMetrics(), cfg.DispatchBacklog)
	d.Start()
	defer d.Stop()

	store := snapshot.New(d, logger)
	if err := store.Start(); err != nil {
		logger.Fatal("snapshot store start failed", zap.Error(err))
	}
	defer store.Stop()

	var app *appadapter.Adapter
	if appName != "" {
		appCtor, ok := registry.App(appName)
		if !ok {
			logger.Fatal("unknown app adapter", zap.String("name", appName))
		}
		endpoint, err := appCtor(cfg.App.Host, cfg.App.Port)
		if err != nil {
			logger.Fatal("app adapter endpoint failed", zap.String("name", appName), zap.Error(err))
		}
		app = appadapter.New(d, endpoint, cfg.App.ModuleNamespace, logger)
		app.Start()
		defer app.Stop()
		logger.Info("app adapter started", zap.String("name", appName),
			zap.String("host", cfg.App.Host), zap.Int("port", cfg.App.Port))
	}

	var bb backbone.Backbone
	if backboneName != "" {
		bbCtor, ok := registry.Backbone(backboneName)
		if !ok {
			logger.Fatal("unknown backbone", zap.String("name", backboneName))
		}
		url := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.Backbone.Username, cfg.Backbone.Password, cfg.Backbone.Host, cfg.Backbone.Port)
		bb, err = bbCtor(url)
		if err != nil {
			logger.Fatal("backbone dial failed", zap.String("name", backboneName), zap.Error(err))
		}
		defer bb.Close()

		// Inbound: every delivery on a canonical topic's exchange is handed
		// straight to the local dispatch core.
		for _, topic := range backboneTopics {
			if err := bb.Subscribe(topic, d.Publish); err != nil {
				logger.Fatal("backbone subscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}

		// Outbound: a dedicated dispatch subscription per topic feeds a
		// goroutine that republishes onto the backbone.
		for _, topic := range backboneTopics {
			inbox := dispatch.NewInbox(cfg.DispatchBacklog)
			p2pTopic := d.Subscribe(topic, inbox, 0)
			defer d.Unsubscribe(p2pTopic)
			go forwardToBackbone(ctx, inbox, bb, logger)
		}

		logger.Info("backbone started", zap.String("name", backboneName))
	}

	logger.Info("threatbusd ready")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// forwardToBackbone drains inbox and republishes each message onto bb,
// until ctx is cancelled.
func forwardToBackbone(ctx context.Context, inbox *dispatch.Inbox, bb backbone.Backbone, logger *zap.Logger) {
	for {
		env, ok := inbox.Dequeue(ctx)
		if !ok {
			return
		}
		if err := bb.Publish(ctx, env.Msg); err != nil {
			logger.Warn("backbone publish failed", zap.String("topic", env.Msg.Topic()), zap.Error(err))
		}
		env.Done()
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:   "threatbusd",
		Short: "threatbus dispatch core daemon",
	}
	root.AddCommand(newRunCommand())
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
