// Package socialsync parses socialsync command flags and launches the runtime.
package socialsync

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/socialsync/internal/platform/cmd"
	"github.com/louisbranch/socialsync/internal/platform/config"
	"github.com/louisbranch/socialsync/internal/services/social/app"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

// Config holds socialsync command configuration.
type Config struct {
	Port                 int           `env:"SOCIALSYNC_PORT" envDefault:"8095"`
	MetricsAddr          string        `env:"SOCIALSYNC_METRICS_ADDR" envDefault:":9095"`
	PeopleHubURL         string        `env:"SOCIALSYNC_PEOPLEHUB_URL"`
	RTAURL               string        `env:"SOCIALSYNC_RTA_URL"`
	Token                string        `env:"SOCIALSYNC_TOKEN"`
	Language             string        `env:"SOCIALSYNC_LANGUAGE" envDefault:"en-US"`
	LocalUsers           string        `env:"SOCIALSYNC_LOCAL_USERS"`
	DirectoryDB          string        `env:"SOCIALSYNC_DIRECTORY_DB" envDefault:"data/socialsync.db"`
	TitleID              uint32        `env:"SOCIALSYNC_TITLE_ID" envDefault:"0"`
	DetailLevel          string        `env:"SOCIALSYNC_DETAIL_LEVEL" envDefault:"none"`
	FrameInterval        time.Duration `env:"SOCIALSYNC_FRAME_INTERVAL" envDefault:"100ms"`
	RefreshInterval      time.Duration `env:"SOCIALSYNC_GRAPH_REFRESH_INTERVAL" envDefault:"20m"`
	PresencePollInterval time.Duration `env:"SOCIALSYNC_PRESENCE_POLL_INTERVAL" envDefault:"30s"`
	RichPresencePolling  bool          `env:"SOCIALSYNC_RICH_PRESENCE_POLLING" envDefault:"false"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The health gRPC server port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "The Prometheus listener address; empty disables it")
	fs.StringVar(&cfg.PeopleHubURL, "peoplehub-url", cfg.PeopleHubURL, "The people service base URL; empty uses the SQLite directory")
	fs.StringVar(&cfg.RTAURL, "rta-url", cfg.RTAURL, "The push channel websocket URL; empty disables push")
	fs.StringVar(&cfg.LocalUsers, "local-users", cfg.LocalUsers, "Comma-separated local user ids")
	fs.StringVar(&cfg.DirectoryDB, "directory-db", cfg.DirectoryDB, "The SQLite people directory path")
	fs.Func("title-id", "The current title id", func(value string) error {
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("title id: %w", err)
		}
		cfg.TitleID = uint32(id)
		return nil
	})
	fs.StringVar(&cfg.DetailLevel, "detail-level", cfg.DetailLevel, "Graph detail: none, titlehistory, preferredcolor or all")
	fs.DurationVar(&cfg.FrameInterval, "frame-interval", cfg.FrameInterval, "DoWork cadence")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Full graph refresh period")
	fs.DurationVar(&cfg.PresencePollInterval, "presence-poll-interval", cfg.PresencePollInterval, "Rich presence poll period")
	fs.BoolVar(&cfg.RichPresencePolling, "rich-presence-polling", cfg.RichPresencePolling, "Poll rich presence on start")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if _, err := domain.ParseDetailLevel(cfg.DetailLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the socialsync runtime.
func Run(ctx context.Context, cfg Config) error {
	detail, err := domain.ParseDetailLevel(cfg.DetailLevel)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSocialSync, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:                 cfg.Port,
			MetricsAddr:          cfg.MetricsAddr,
			PeopleHubURL:         cfg.PeopleHubURL,
			RTAURL:               cfg.RTAURL,
			Token:                cfg.Token,
			Language:             cfg.Language,
			LocalUsers:           config.SplitList(cfg.LocalUsers),
			DirectoryDB:          cfg.DirectoryDB,
			TitleID:              cfg.TitleID,
			Detail:               detail,
			FrameInterval:        cfg.FrameInterval,
			RefreshInterval:      cfg.RefreshInterval,
			PresencePollInterval: cfg.PresencePollInterval,
			RichPresencePolling:  cfg.RichPresencePolling,
		})
	})
}
