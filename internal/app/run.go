package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"telemetry-server/internal/config"
	"telemetry-server/internal/db"
	"telemetry-server/internal/events"
	"telemetry-server/internal/httpapi"
	"telemetry-server/internal/kafka"
	"telemetry-server/internal/logging"
	"telemetry-server/internal/metrics"
	"telemetry-server/internal/modules/readings"
	"telemetry-server/internal/mqtt"
	"telemetry-server/internal/schema"
)

func Run(ctx context.Context, cfg config.Config) error {
	startedAt := time.Now()
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"corsAllowedOrigins", cfg.CORSAllowedOrigins,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
		"kafkaBrokers", cfg.KafkaBrokers,
		"kafkaTopic", cfg.KafkaTopic,
		"publishTimeout", cfg.PublishTimeout,
	)

	dbConn, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	m := metrics.New()

	var publishers []events.Publisher
	var mqttPublisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		mqttPublisher = mqtt.NewPublisher(cfg, logging.Component(slog.Default(), "mqtt"))
		// Short timeout so a missing broker does not block startup; the client keeps retrying.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttPublisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing, events are dropped until it connects)", "error", err)
		}
		publishers = append(publishers, mqttPublisher)
	}
	var kafkaPublisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = kafka.NewPublisher(cfg, logging.Component(slog.Default(), "kafka"))
		publishers = append(publishers, kafkaPublisher)
	}
	fanout := events.NewFanout(cfg.PublishTimeout, m, logging.Component(slog.Default(), "events"), publishers...)
	slog.Info("event publishers configured", "count", len(publishers))

	mux := httpapi.NewMux(cfg.StaticDir, startedAt, m.Handler())
	readings.RegisterFeature(mux, dbConn, fanout, m)

	srv := httpapi.NewServer(cfg, httpapi.NewHandler(cfg, mux, m))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Publishers close after the server and the fanout drain so queued events still go out.
	if err := fanout.Close(shutdownCtx); err != nil {
		slog.Warn("events still in flight at shutdown", "error", err)
	}
	if mqttPublisher != nil {
		slog.Info("mqtt disconnecting")
		mqttPublisher.Disconnect()
	}
	if kafkaPublisher != nil {
		slog.Info("kafka writer closing")
		if err := kafkaPublisher.Close(); err != nil {
			slog.Error("kafka close", "error", err)
		}
	}

	return ctx.Err()
}

// OpenStore opens the database and makes sure the schema exists. A failure
// here means the process cannot start.
func OpenStore(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := schema.Init(ctx, dbConn); err != nil {
		_ = db.Close(dbConn)
		return nil, err
	}
	slog.Info("database ready", "path", cfg.SQLitePath)
	return dbConn, nil
}
