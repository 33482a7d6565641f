package common

import (
	"context"
	"errors"
	"log"
	"strings"

	"speed-ledger-go/internal/api"
	"speed-ledger-go/internal/database"
	"speed-ledger-go/internal/metrics"
	"speed-ledger-go/internal/mirror"
	"speed-ledger-go/internal/models"
	"speed-ledger-go/internal/speed"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

var ErrProviderNotConfigured = errors.New("payment provider not configured")

type Services struct {
	DbService    *database.Service
	SpeedService *speed.Service
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Mirror       *mirror.Publisher
	Rails        models.RailSet
	Ledger       *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires everything the HTTP daemon needs: database,
// provider client, metrics registry, mirror and the ledger itself.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	rails, err := LoadRailsConfig(cfg.Ledger.RailsFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading Speed API credentials")
	speedService, err := speed.NewService(cfg.Speed)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	publisher, err := newMirror(ctx, cfg.Mirror, m)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	ledger := api.NewLedgerService(api.LedgerServiceConfig{
		Store:    dbService,
		Provider: speedService,
		Mirror:   publisher,
		Metrics:  m,
		Rails:    rails,
		Ledger:   cfg.Ledger,
	})
	zap.L().Info("Ledger initialized",
		zap.String("deposit_mode", string(ledger.DepositMode())),
		zap.Int("rails", len(rails)))

	return &Services{
		DbService:    dbService,
		SpeedService: speedService,
		Registry:     registry,
		Metrics:      m,
		Mirror:       publisher,
		Rails:        rails,
		Ledger:       ledger,
	}, nil
}

// InitializeLedgerOnly opens the database and a ledger without the
// provider client or mirror. Useful for operator commands that only
// read or adjust balances.
func InitializeLedgerOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	rails, err := LoadRailsConfig(cfg.Ledger.RailsFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledger := api.NewLedgerService(api.LedgerServiceConfig{
		Store:    dbService,
		Provider: offlineProvider{},
		Rails:    rails,
		Ledger:   cfg.Ledger,
	})

	return &Services{DbService: dbService, Rails: rails, Ledger: ledger}, nil
}

func newMirror(ctx context.Context, cfg models.MirrorConfig, m *metrics.Metrics) (*mirror.Publisher, error) {
	var sink mirror.Sink = mirror.NopSink{}
	if cfg.Enabled {
		redisSink, err := mirror.NewRedisSink(ctx, mirror.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.Channel,
		})
		if err != nil {
			return nil, err
		}
		sink = redisSink
	} else {
		zap.L().Info("Mirror disabled")
	}

	return mirror.NewPublisher(sink, mirror.PublisherConfig{
		QueueSize:    cfg.QueueSize,
		WriteTimeout: cfg.WriteTimeout,
		Metrics:      m,
	}), nil
}

// Close drains the mirror before closing the database so the last
// committed records still go out.
func (cs *Services) Close() {
	if cs.Mirror != nil {
		cs.Mirror.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

type offlineProvider struct{}

func (offlineProvider) CreatePayment(context.Context, speed.CreatePaymentParams) (*speed.Payment, error) {
	return nil, ErrProviderNotConfigured
}

func (offlineProvider) CreateWithdrawal(context.Context, speed.CreateWithdrawalParams) (*speed.Withdrawal, error) {
	return nil, ErrProviderNotConfigured
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
