// Command newrelic-exporter exposes New Relic APM application metrics and
// deployment markers in the Prometheus exposition format.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obsidianstack/newrelic-exporter/internal/collector"
	"github.com/obsidianstack/newrelic-exporter/internal/config"
	"github.com/obsidianstack/newrelic-exporter/internal/logger"
	"github.com/obsidianstack/newrelic-exporter/internal/server"
	"github.com/obsidianstack/newrelic-exporter/internal/upstream"
)

const name = "newrelic-exporter"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

// buildVersion is version.Version, or "unknown" when the binary was built
// without ldflags. cobra only registers --version for a non-empty Version.
func buildVersion() string {
	if version.Version == "" {
		return "unknown"
	}
	return version.Version
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           name,
		Short:         "Prometheus exporter for New Relic APM metrics",
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}
	cmd.SetVersionTemplate(version.Print(name) + "\n")
	if err := config.RegisterFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Resolve(v)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return fmt.Errorf("%w (see --help)", err)
		}
		return err
	}
	// Resolve has already validated both.
	accountID, _ := cfg.NewRelic.AccountID()
	lvl, _ := logger.ParseLevel(cfg.Log.Level)

	var level slog.LevelVar
	level.Set(lvl)
	slog.SetDefault(logger.New(os.Stdout, cfg.Log.Format, &level))

	slog.Info(name+" starting",
		"version", version.Info(),
		"endpoint", cfg.NewRelic.Endpoint,
		"account", accountID,
		"listen_address", cfg.Exporter.ListenAddress,
		"metrics_path", cfg.Exporter.MetricsPath,
		"deployment_window", cfg.NewRelic.DeploymentWindow,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := upstream.New(upstream.Options{
		Endpoint:           cfg.NewRelic.Endpoint,
		APIKey:             cfg.NewRelic.Key(),
		Timeout:            cfg.NewRelic.Timeout,
		InsecureSkipVerify: cfg.NewRelic.TLS.InsecureSkipVerify,
		UserAgent:          name + "/" + buildVersion(),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector.New(client, collector.Options{
			AccountID:        accountID,
			DeploymentWindow: cfg.NewRelic.DeploymentWindow,
		}),
		versioncollector.NewCollector("newrelic_exporter"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if path := v.GetString(config.ConfigPathKey); path != "" {
		go func() {
			err := config.Watch(ctx, path, func(c *config.Config) {
				l, err := logger.ParseLevel(c.Log.Level)
				if err != nil {
					return
				}
				if l != level.Level() {
					level.Set(l)
					slog.Info("log level changed", "level", l.String())
				}
			})
			if err != nil {
				slog.Error("config watch stopped", "err", err)
			}
		}()
	}

	srv := server.New(reg, server.Options{
		ListenAddress: cfg.Exporter.ListenAddress,
		MetricsPath:   cfg.Exporter.MetricsPath,
		Version:       version.Info(),
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	slog.Info(name + " stopped")
	return nil
}
