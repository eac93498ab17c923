// Command controlplaned is the cloud control plane's session daemon: it
// terminates device WebSocket connections (AUTH handshake, single-active-
// connection supersede, idle timeout, durable snapshot persistence) and
// fronts them with the operator-facing REST surface for snapshot reads and
// directive delivery.
//
// Usage:
//
//	controlplaned --config /etc/router-agent/controlplaned.yaml
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/meshbridge/routeragent/pkg/config"
	"github.com/meshbridge/routeragent/pkg/session"
	"github.com/meshbridge/routeragent/pkg/session/httpapi"
	"github.com/meshbridge/routeragent/pkg/util"
	"github.com/meshbridge/routeragent/pkg/version"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "controlplaned",
	Short:         "Router Agent control-plane session daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runControlplaned,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultServerConfigPath, "server config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
}

func runControlplaned(cmd *cobra.Command, args []string) error {
	if verbose {
		_ = util.SetLogLevel("debug")
	}

	cfg, err := config.LoadServerFrom(configPath)
	if err != nil {
		return fmt.Errorf("controlplaned: %w", err)
	}
	_ = util.SetLogLevel(cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	log := util.WithField("component", "controlplaned")
	manager := session.NewManager(
		session.NewRedisIdentityStore(rdb),
		session.NewRedisSnapshotStore(rdb),
		log,
	)
	api := httpapi.NewServer(manager, &cfg.Policy, httpapi.StaticTokenResolver(cfg.Tokens), log)

	mux := api.Routes()
	mux.HandleFunc("GET /v1/devices/connect", newDeviceUpgradeHandler(manager, log))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).WithField("version", version.Info()).Info("controlplaned: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("controlplaned: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("controlplaned: shutting down")
		return srv.Shutdown(context.Background())
	}
}
