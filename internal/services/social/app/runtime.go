// Package app wires the social sync engine into a long-running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/socialsync/internal/platform/timeouts"
	"github.com/louisbranch/socialsync/internal/services/social/domain"
	"github.com/louisbranch/socialsync/internal/services/social/graph"
	"github.com/louisbranch/socialsync/internal/services/social/manager"
	"github.com/louisbranch/socialsync/internal/services/social/peoplehub"
	"github.com/louisbranch/socialsync/internal/services/social/rta"
	socialsqlite "github.com/louisbranch/socialsync/internal/services/social/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls process startup, collaborators and frame cadence.
type RuntimeConfig struct {
	Port                 int
	MetricsAddr          string
	PeopleHubURL         string
	RTAURL               string
	Token                string
	Language             string
	LocalUsers           []string
	DirectoryDB          string
	TitleID              uint32
	Detail               domain.DetailLevel
	FrameInterval        time.Duration
	RefreshInterval      time.Duration
	PresencePollInterval time.Duration
	RichPresencePolling  bool
}

const (
	defaultPort        = 8095
	defaultDirectoryDB = "data/socialsync.db"
	healthService      = "socialsync.runtime"
)

func (c RuntimeConfig) normalized() RuntimeConfig {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if strings.TrimSpace(c.DirectoryDB) == "" {
		c.DirectoryDB = defaultDirectoryDB
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	return c
}

// Run starts the engine, its collaborators and the health and metrics
// servers, and blocks until ctx is done or one of them fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	localUsers, err := resolveLocalUsers(cfg.LocalUsers, cfg.Token)
	if err != nil {
		return err
	}

	fetcher, closeFetcher, err := openFetcher(cfg)
	if err != nil {
		return err
	}
	defer closeFetcher()

	var source graph.NotificationSource
	var push *rta.Client
	if strings.TrimSpace(cfg.RTAURL) != "" {
		push, err = rta.NewClient(rta.Config{
			URL:   cfg.RTAURL,
			Token: rta.TokenSource(peoplehub.StaticToken(cfg.Token)),
			Logf:  log.Printf,
		})
		if err != nil {
			return fmt.Errorf("build push client: %w", err)
		}
		source = push
	}

	mgr, err := manager.New(manager.Config{
		Fetcher: fetcher,
		Source:  source,
		TitleID: cfg.TitleID,
		Options: graph.Options{
			RefreshInterval:      cfg.RefreshInterval,
			PresencePollInterval: cfg.PresencePollInterval,
		},
		Logf: log.Printf,
	})
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer mgr.Close()

	if err := registerLocalUsers(mgr, localUsers, cfg.Detail, cfg.RichPresencePolling); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := newHealthServer(mgr)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if strings.TrimSpace(cfg.MetricsAddr) != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
		log.Printf("metrics listening at %s", cfg.MetricsAddr)
	}

	if push != nil {
		group.Go(func() error {
			return push.Run(groupCtx)
		})
	}

	loop := NewLoop(mgr, cfg.FrameInterval, EventLogger(log.Printf))
	group.Go(func() error {
		return loop.Run(groupCtx)
	})

	log.Printf("socialsync health listening at %v for %d local user(s)", listener.Addr(), len(localUsers))
	return group.Wait()
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// resolveLocalUsers falls back to the caller named by the token when no
// local users are configured.
func resolveLocalUsers(configured []string, token string) ([]string, error) {
	users := make([]string, 0, len(configured))
	for _, id := range configured {
		if id = strings.TrimSpace(id); id != "" {
			users = append(users, id)
		}
	}
	if len(users) > 0 {
		return users, nil
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("at least one local user or a token is required")
	}
	caller, err := peoplehub.CallerFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("local user from token: %w", err)
	}
	return []string{caller}, nil
}

// openFetcher selects the people service when a URL is configured and the
// SQLite directory otherwise.
func openFetcher(cfg RuntimeConfig) (graph.Fetcher, func(), error) {
	if strings.TrimSpace(cfg.PeopleHubURL) != "" {
		client, err := peoplehub.NewClient(peoplehub.Config{
			BaseURL:  cfg.PeopleHubURL,
			Token:    peoplehub.StaticToken(cfg.Token),
			Language: cfg.Language,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build people client: %w", err)
		}
		return client, func() {}, nil
	}

	if dir := filepath.Dir(cfg.DirectoryDB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create directory storage dir: %w", err)
		}
	}
	store, err := socialsqlite.Open(cfg.DirectoryDB, socialsqlite.WithLogf(log.Printf))
	if err != nil {
		return nil, nil, fmt.Errorf("open people directory: %w", err)
	}
	return store, func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close people directory: %v", closeErr)
		}
	}, nil
}

// registerLocalUsers adds every local user with a friends group and an
// online group.
func registerLocalUsers(mgr *manager.Manager, localUsers []string, detail domain.DetailLevel, polling bool) error {
	for _, localUserID := range localUsers {
		if err := mgr.AddLocalUser(localUserID, detail); err != nil {
			return fmt.Errorf("add local user %s: %w", localUserID, err)
		}
		if _, err := mgr.CreateFilterGroup(localUserID, domain.PresenceFilterAll, domain.RelationshipFilterFriends); err != nil {
			return fmt.Errorf("create friends group for %s: %w", localUserID, err)
		}
		if _, err := mgr.CreateFilterGroup(localUserID, domain.PresenceFilterOnline, domain.RelationshipFilterAll); err != nil {
			return fmt.Errorf("create online group for %s: %w", localUserID, err)
		}
		if err := mgr.SetRichPresencePolling(localUserID, polling); err != nil {
			return fmt.Errorf("set rich presence polling for %s: %w", localUserID, err)
		}
	}
	return nil
}
