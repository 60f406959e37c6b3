package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"globetrotter/config"
	dbt "globetrotter/db/db"
	"globetrotter/db/mem"
	"globetrotter/db/pg"
	"globetrotter/mq/gcppubsub"
	"globetrotter/mq/goch"
	"globetrotter/mq/mq"
	"globetrotter/mq/rabbit"
	"globetrotter/planner"
	"globetrotter/web"
)

const eventBufferSize = 256

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the itinerary API server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("dev") {
				cfg.Server.IsDev, _ = flags.GetBool("dev")
			}
			if flags.Changed("port") {
				cfg.Server.Port, _ = flags.GetString("port")
			}
			if flags.Changed("store") {
				cfg.Store, _ = flags.GetString("store")
			}
			if flags.Changed("mq") {
				cfg.MQ.Mode, _ = flags.GetString("mq")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.Server.IsDev))
		},
	}

	cmd.Flags().Bool("dev", false, "Run in development mode")
	cmd.Flags().String("port", "8080", "Port to run the web server on")
	cmd.Flags().String("store", "memory", "Entity store (memory, postgres)")
	cmd.Flags().String("mq", string(mq.ModeGoChan), "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	events, err := openEventQueue(ctx, cfg.MQ)
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Warn("failed to close event queue", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := planner.New(store,
		planner.WithConfig(cfg.Planner),
		planner.WithLogger(logger),
		planner.WithEvents(events),
		planner.WithMetrics(planner.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	router := web.NewRouter(p, events, reg, cfg.Server, logger)
	return web.Serve(ctx, cfg.Server.Port, router, logger)
}

func openStore(cfg config.Config, logger *slog.Logger) (dbt.ItineraryDBWrapper, func(), error) {
	switch cfg.Store {
	case "postgres":
		db, err := pg.InitPostgresGORM(pg.CreateDSN(cfg.Database), cfg.Server.IsDev)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return pg.NewGORMItineraryDBWrapper(db), func() { pg.CloseGORM(db) }, nil
	default:
		store := mem.NewInMemoryItineraryDBWrapper()
		if err := store.SeedDemoCatalog(); err != nil {
			return nil, nil, err
		}
		logger.Warn("using the in-memory store; data is lost on exit")
		return store, func() {}, nil
	}
}

func openEventQueue(ctx context.Context, cfg config.MQConfig) (mq.TripEventQueue, error) {
	switch mq.Mode(cfg.Mode) {
	case mq.ModeGoChan:
		return goch.NewChannelTripEventQueue(eventBufferSize), nil
	case mq.ModeRabbitMQ:
		conn, err := rabbit.NewRabbitConnection(cfg.RabbitURL)
		if err != nil {
			return nil, err
		}
		q, err := rabbit.NewRabbitTripEventQueue(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return q, nil
	case mq.ModeGCPPubSub:
		if cfg.GCPProjectID == "" {
			return nil, fmt.Errorf("mq mode %s needs GCP_PROJECT_ID", cfg.Mode)
		}
		q, err := gcppubsub.NewGCPTripEventQueue(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown mq mode %q", cfg.Mode)
	}
}
