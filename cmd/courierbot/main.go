package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/swiftline/courierbot/core/config"
	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/handlers"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/database"
	"github.com/swiftline/courierbot/core/domain/inmem"
	"github.com/swiftline/courierbot/core/logger"
	"github.com/swiftline/courierbot/core/transport/gateway"
	"github.com/swiftline/courierbot/core/transport/telegram"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "courierbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var db *sqlx.DB
	if cfg.Store.Backend == coreconfig.StorePostgres {
		dbCfg, err := loadDatabaseConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load database config: %w", err)
		}
		if err := database.RunMigrations(dbCfg); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		db, err = database.Connect(dbCfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
	}

	store, err := session.Open(cfg.Store, db)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	// Domain ports run on the in-memory world until the real delivery
	// platform is attached.
	world := inmem.NewWorld()
	deps := handlers.Deps{
		Directory:  world,
		Deliveries: world,
		Stations:   world,
		Charges:    world,
		Blacklist:  world,
		Couriers:   world,
	}

	engine, err := conversation.NewEngine(conversation.Options{
		Store:             store,
		Directory:         world,
		Handlers:          handlers.BuildTable(deps),
		Onboarding:        handlers.Onboarding(deps),
		Fallbacks:         handlers.BuildFallbacks(deps),
		Keywords:          handlers.BuildKeywords(deps),
		SideEffectTimeout: time.Duration(cfg.Engine.SideEffectTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	bot, err := telegram.New(cfg, engine)
	if err != nil {
		return fmt.Errorf("build telegram bot: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- bot.Run(ctx) }()

	running := 1
	if cfg.Gateway.Listen != "" && cfg.Gateway.BaseURL != "" {
		client := gateway.NewClient(cfg.Gateway)
		server, err := gateway.NewServer(cfg.Gateway, engine, client)
		if err != nil {
			return fmt.Errorf("build gateway server: %w", err)
		}
		go func() { errCh <- server.Run(ctx) }()
		running++
	}

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.String("store", cfg.Store.Backend),
	)

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	logger.L.With("component", "app").Info("shutting down",
		slog.String("event", "shutdown"),
	)
	return firstErr
}

// loadDatabaseConfig reads the database section of the config file and
// applies the DB_* environment overrides.
func loadDatabaseConfig(path string) (database.Config, error) {
	var file struct {
		Database database.Config `yaml:"database"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return database.Config{}, err
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return database.Config{}, err
	}
	if err := envconfig.Process("", &file.Database); err != nil {
		return database.Config{}, err
	}
	return file.Database, nil
}
