package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/samcore-io/samcore/internal/hub"
	"github.com/samcore-io/samcore/internal/hubconfig"
	"github.com/samcore-io/samcore/internal/obslog"
)

// newServeCommand builds "samcorehub serve", binding the operational flags
// named in §6's expanded CLI surface into viper ahead of hubconfig.Load.
func newServeCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub, accepting node connections until terminated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("socket-dir", "", "directory containing the hub's Unix domain socket")
	flags.String("settings-file", "", "path to SamCoreSettings.json")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "address the /healthz and /metrics HTTP surface listens on")

	_ = v.BindPFlag("socket_dir", flags.Lookup("socket-dir"))
	_ = v.BindPFlag("settings_file", flags.Lookup("settings-file"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, err := hubconfig.Load(v)
	if err != nil {
		return fmt.Errorf("samcorehub: load config: %w", err)
	}

	log := obslog.New(obslog.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registerer := prometheus.NewRegistry()
	h, err := hub.New(hub.Config{
		Name:         cfg.HubName,
		SocketPath:   filepath.Join(cfg.SocketDir, cfg.HubName+".sock"),
		SettingsPath: cfg.SettingsFile,
		Logger:       log,
		Registerer:   registerer,
	})
	if err != nil {
		return fmt.Errorf("samcorehub: construct hub: %w", err)
	}

	opsServer := newOpsServer(cfg.MetricsAddr, h, registerer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return opsServer.Close()
	})
	g.Go(func() error {
		log.Info("ops surface listening", "addr", cfg.MetricsAddr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newOpsServer exposes /healthz (hub lifecycle state) and /metrics
// (Prometheus) without touching the protocol socket at all (§1's
// expansion: "an always-on routing hub needs to be observable even though
// the protocol itself has no metrics API").
func newOpsServer(addr string, h *hub.Hub, reg *prometheus.Registry) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := h.State()
		if state != hub.Open {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, state.String())
	})
	return &http.Server{Addr: addr, Handler: r}
}
