package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"track-rainfall/internal/alerting"
	"track-rainfall/internal/config"
	"track-rainfall/internal/fetcher"
	"track-rainfall/internal/service"
	"track-rainfall/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newSource() *fetcher.FloodMonitoring {
	up := a.Config.Upstream
	return fetcher.NewFloodMonitoring(fetcher.FloodMonitoringOptions{
		BaseURL:   up.BaseURL,
		Parameter: up.Parameter,
		PageLimit: up.PageLimit,
		Timeout:   up.RequestTimeout,
		UserAgent: up.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newUpdater(source fetcher.Source, mirror storage.MirrorStore, notifier alerting.Notifier) *service.Updater {
	return service.New(source, mirror, notifier, service.Options{
		LookbackDays:    a.Config.Series.LookbackDays,
		NotifyOnFailure: a.Config.Alerting.NotifyOnFailure,
	}, a.Logger)
}

// UpdateOptions configure a single fetch-and-update cycle.
type UpdateOptions struct {
	StationID  string
	OutputFile string
	Mode       string
	Days       int
	Start      *time.Time
	End        *time.Time
	DryRun     bool
}

// BackfillOptions configure a chunked historical fetch.
type BackfillOptions struct {
	StationID  string
	OutputFile string
	From       time.Time
	To         time.Time
	ChunkDays  int
	DryRun     bool
}

// ExportOptions hold parameters for exporting the series.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	FromDB  bool
	MaxDays int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// StationsOptions configure the proximity station search.
type StationsOptions struct {
	Latitude  *float64
	Longitude *float64
	RadiusKM  float64
}
