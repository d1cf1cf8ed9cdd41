package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"workhub/internal/config"
	"workhub/internal/db"
	"workhub/internal/domain"
	"workhub/internal/engine"
	"workhub/internal/migrate"
	"workhub/internal/repo"
)

// Options selects the workspace and how the process logs.
type Options struct {
	Workspace string
	// ConfigFile overrides <workspace>/workhub.yml.
	ConfigFile string
	Logger     *slog.Logger
}

// App is an opened workspace: config loaded, database migrated, engine built.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Logger *slog.Logger
}

// Open loads config, opens and migrates the database and wires the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, dialect, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	logger.Debug("workspace opened", "driver", dialect, "workspace", opts.Workspace)
	return &App{
		Config: cfg,
		DB:     conn,
		Repo:   r,
		Engine: engine.New(r, cfg, logger),
		Logger: logger,
	}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigFile != "" {
		return config.FromFile(opts.ConfigFile)
	}
	return config.LoadOptional(opts.Workspace)
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewLogger builds the process logger. format is text or json.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// CreateAPIKey mints a key for actorID and stores only its hash. The raw key
// is returned once.
func (a *App) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, fmt.Errorf("actor id is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "wh_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		Prefix:    repo.KeyPrefix(raw),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: repo.FormatTime(a.Engine.Now()),
	}
	if err := a.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}
