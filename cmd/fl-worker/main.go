package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fltrain"
	"github.com/absmach/fltrain/pkg/crypto"
	"github.com/absmach/fltrain/pkg/dataset"
	pkgmqtt "github.com/absmach/fltrain/pkg/mqtt"
	"github.com/absmach/fltrain/worker"
	"github.com/absmach/fltrain/worker/api"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	port       int
	workerID   string
	host       string
	dataDir    string
	samples    bool
	logLevel   slog.Level
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file")
	flag.IntVar(&port, "port", 0, "Port to listen on")
	flag.StringVar(&workerID, "id", "", "Worker ID, a random name when empty")
	flag.StringVar(&host, "host", "", "Address to bind")
	flag.StringVar(&dataDir, "data-dir", "", "Directory holding <key>.json datasets")
	flag.BoolVar(&samples, "samples", true, "Seed the built-in sample datasets")
	flag.Parse()

	cfg, err := fltrain.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	wc := applyFlags(cfg.Worker)

	logger := configureLogger(wc.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := loadDatasets(wc, logger)
	if err != nil {
		return err
	}

	sealer, err := crypto.NewSealer(wc.WorkloadKey)
	if err != nil {
		return fmt.Errorf("invalid workload key: %w", err)
	}

	var pubsub pkgmqtt.PubSub
	if wc.MQTT.URL != "" {
		pubsub, err = pkgmqtt.NewPubSub(pkgmqtt.Config{
			URL:         wc.MQTT.URL,
			ClientID:    "fl-worker-" + wc.ID,
			Username:    wc.MQTT.Username,
			Password:    wc.MQTT.Password,
			Timeout:     wc.MQTT.Timeout,
			CAPath:      wc.MQTT.CAPath,
			CertPath:    wc.MQTT.CertPath,
			KeyPath:     wc.MQTT.KeyPath,
			WillTopic:   worker.AliveTopic(wc.ID),
			WillPayload: map[string]any{"status": "offline", "worker_id": wc.ID},
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect from MQTT broker", slog.Any("error", err))
			}
		}()
	}
	events := worker.NewEvents(pubsub, wc.ID, logger)

	svc := worker.NewService(wc.ID, store, sealer, events, wc.HandleTTL, logger)

	server := &http.Server{
		Addr:              net.JoinHostPort(wc.Host, strconv.Itoa(wc.Port)),
		Handler:           api.MakeHandler(svc, wc.MaxFrameSize, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting worker",
		slog.String("worker_id", wc.ID),
		slog.String("address", server.Addr),
		slog.Int("datasets", len(store.List())),
		slog.Bool("sealed", sealer.Enabled()),
		slog.Bool("mqtt", pubsub != nil))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		events.StartHeartbeat(ctx, wc.MQTT.HeartbeatInterval)

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down worker", slog.String("worker_id", wc.ID))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// applyFlags lets explicitly set command line flags win over the config file
// and environment.
func applyFlags(wc fltrain.WorkerConfig) fltrain.WorkerConfig {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			wc.Port = port
		case "id":
			wc.ID = workerID
		case "host":
			wc.Host = host
		case "data-dir":
			wc.DataDir = dataDir
		case "samples":
			wc.SkipSamples = !samples
		}
	})

	if wc.ID == "" {
		wc.ID = namegenerator.NewGenerator().Generate()
	}

	return wc
}

func loadDatasets(wc fltrain.WorkerConfig, logger *slog.Logger) (*dataset.Store, error) {
	store := dataset.NewStore()

	if !wc.SkipSamples {
		for _, d := range dataset.Samples() {
			if err := store.Add(d); err != nil {
				return nil, err
			}
		}
	}

	if wc.DataDir != "" {
		n, err := store.LoadDir(wc.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded datasets", slog.String("dir", wc.DataDir), slog.Int("count", n))
	}

	return store, nil
}

func configureLogger(level string) *slog.Logger {
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}
