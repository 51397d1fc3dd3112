// ABOUTME: Entry point for the relay-broker
// ABOUTME: Wires config, store, transport, and runs server or lambda mode

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/fatih/color"

	"github.com/2389/relay-broker/internal/broker"
	"github.com/2389/relay-broker/internal/config"
	"github.com/2389/relay-broker/internal/dispatch"
	"github.com/2389/relay-broker/internal/pairing"
	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/server"
	"github.com/2389/relay-broker/internal/store"
	"github.com/2389/relay-broker/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                _               _
  _ __ ___| | __ _ _   _   | |__  _ __ ___ | | _____ _ __
 | '__/ _ \ |/ _' | | | |  | '_ \| '__/ _ \| |/ / _ \ '__|
 | | |  __/ | (_| | |_| |  | |_) | | | (_) |   <  __/ |
 |_|  \___|_|\__,_|\__, |  |_.__/|_|  \___/|_|\_\___|_|
                   |___/
`

// getConfigPath returns the path to the broker config file.
// Priority: RELAY_BROKER_CONFIG env var > XDG_CONFIG_HOME/relay-broker/broker.yaml > ~/.config/relay-broker/broker.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_BROKER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "broker.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relay-broker", "broker.yaml")
}

// setupLogger configures the default slog logger from config.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// buildStore creates the configured table store backend.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.Store.SQLite.Path)

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Store.DynamoDB.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}

		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Store.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Store.DynamoDB.Endpoint)
			}
		})

		return store.NewDynamoStore(client, store.TableNames{
			Clients:     cfg.Store.DynamoDB.ClientsTable,
			Gatekeepers: cfg.Store.DynamoDB.GatekeepersTable,
			Pairings:    cfg.Store.DynamoDB.PairingsTable,
		}), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// brokerOptions maps config onto the broker's relay policy.
func brokerOptions(cfg *config.Config) broker.Options {
	return broker.Options{
		ConnectionTTL: cfg.TTL.Connection,
		PairingTTL:    cfg.TTL.Pairing,
		Cardinality:   broker.Cardinality(cfg.Matching.Cardinality),
		NotifyNoRoute: *cfg.Relay.NotifyNoRoute,
		Retry: broker.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
		},
	}
}

func run() error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tableStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer tableStore.Close()

	reg := registry.New(tableStore, logger)
	pairings := pairing.New(tableStore, logger)

	switch cfg.Mode {
	case config.ModeLambda:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		tr := transport.NewAPIGateway(awsCfg, cfg.Transport.Endpoint, logger)
		b := broker.New(reg, pairings, tr, brokerOptions(cfg), logger)
		handler := dispatch.NewHandler(b, logger)

		logger.Info("starting in lambda mode", "version", version)
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx))
		return nil

	case config.ModeServer:
		srv := server.New(cfg.Server.Addr, cfg.Server.Path, logger)
		b := broker.New(reg, pairings, srv, brokerOptions(cfg), logger)
		srv.SetHandler(b)

		logger.Info("starting in server mode", "version", version, "addr", cfg.Server.Addr)
		return srv.ListenAndServe(ctx)

	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func main() {
	color.Cyan(banner)
	fmt.Printf("relay-broker %s\n\n", version)

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
