// Wxalerts polls a forecast zone for active weather hazard alerts and raises
// sounds, notifications and urgent takeovers for new and updated alerts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/wxalerts/internal/api"
	"github.com/linnemanlabs/wxalerts/internal/backend"
	wc "github.com/linnemanlabs/wxalerts/internal/cfg"
	"github.com/linnemanlabs/wxalerts/internal/effects"
	"github.com/linnemanlabs/wxalerts/internal/feed"
	"github.com/linnemanlabs/wxalerts/internal/ingest"
	"github.com/linnemanlabs/wxalerts/internal/notify/slack"
	"github.com/linnemanlabs/wxalerts/internal/postgres"
	"github.com/linnemanlabs/wxalerts/internal/prefs"
)

const (
	appName   = "wxalerts"
	component = "server"
	envPrefix = "WXALERTS_"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

// settings groups every package's flag-backed config.
type settings struct {
	app    wc.Config
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config
}

type flagged interface {
	RegisterFlags(fs *flag.FlagSet)
	Validate() error
}

func (s *settings) all() []flagged {
	return []flagged{&s.app, &s.http, &s.httpmw, &s.log, &s.ops, &s.prof, &s.trace}
}

// parseSettings reads flags, then WXALERTS_* env vars for anything not set
// on the command line. showVersion reports -V.
func parseSettings(fs *flag.FlagSet, args []string, stderr io.Writer) (s *settings, showVersion bool, err error) {
	s = &settings{}
	for _, c := range s.all() {
		c.RegisterFlags(fs)
	}
	fs.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if showVersion {
		return s, true, nil
	}

	cfg.FillFromEnv(fs, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})

	errs := make([]error, 0, len(s.all())+1)
	for _, c := range s.all() {
		errs = append(errs, c.Validate())
	}
	if s.app.APIPort == s.ops.Port {
		errs = append(errs, fmt.Errorf("http and admin ports must differ (both %d)", s.app.APIPort))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, false, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, false, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	s, showVersion, err := parseSettings(flag.CommandLine, os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("%s (%s) %s (commit=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty)
		return nil
	}
	appCfg := s.app

	lg, err := log.New(s.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"http_port", appCfg.APIPort,
		"admin_port", s.ops.Port,
		"store", appCfg.Store,
		"feed_url", appCfg.FeedURL,
		"prefs_file", appCfg.PrefsFile,
		"api_token_set", appCfg.APIToken != "",
		"slack", appCfg.SlackWebhookURL != "",
		"enable_tracing", s.trace.EnableTracing,
		"enable_pyroscope", s.prof.EnablePyroscope,
	)

	profOpts := s.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", s.prof.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := s.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && s.prof.EnablePyroscope)

	store, closeStore, err := backend.Open(ctx, backend.Options{
		Kind:        appCfg.Store,
		SQLitePath:  appCfg.SQLitePath,
		DatabaseURL: appCfg.DatabaseURL,
		MaxConns:    appCfg.DBMaxConns,
		Observer:    postgres.NewQueryMetrics(m.Registry()),
	})
	if err != nil {
		return err
	}
	defer closeStore()

	userPrefs, err := prefs.Load(appCfg.PrefsFile, appCfg.Zone, L)
	if err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	userPrefs.Watch(ctx)
	cur := userPrefs.Current()
	L.Info(ctx, "alert source ready", "zone", cur.Zone, "interval", cur.Interval().String(), "enabled", cur.Enabled)

	recorder := effects.NewRecorder(appCfg.EventBuffer)
	sinks := effects.Fanout{recorder, effects.LogSink{L: L}}
	if appCfg.SlackWebhookURL != "" {
		sinks = append(sinks, slack.New(appCfg.SlackWebhookURL))
	}
	// sound and notification toggles apply to every sink
	sink := effects.Gate{Next: sinks, Toggles: userPrefs.Toggles}

	fetcher := feed.New(appCfg.FeedURL, appCfg.UserAgent, time.Duration(appCfg.FetchTimeoutSeconds)*time.Second)
	poller := ingest.NewPoller(store, fetcher, userPrefs, sink, L, ingest.NewMetrics(m.Registry()).Hooks())

	pollCtx, stopPoll := context.WithCancel(postgres.WithOrigin(ctx, "poller"))
	defer stopPoll()
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := poller.Run(pollCtx); err != nil {
			L.Error(ctx, err, "poller stopped")
		}
	}()

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := s.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		return fmt.Errorf("ops http listener: %w", err)
	}

	h := newHandler(handlerDeps{
		logger:      L,
		metrics:     m,
		api:         api.New(L, store, poller, recorder, appCfg.APIToken),
		healthz:     health.HealthzHandler(liveness),
		readyz:      health.ReadyzHandler(readiness),
		trustedHops: s.httpmw.TrustedProxyHops,
	})
	serverOpts, err := s.http.ToOptions()
	if err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, serverOpts)
	if err != nil {
		_ = opsHTTPStop(context.Background())
		return fmt.Errorf("api http listener: %w", err)
	}

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	sd := shutdown{
		logger: L,
		gate:   &gate,
		drain:  time.Duration(appCfg.DrainSeconds) * time.Second,
		budget: time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second,
	}
	sd.wait()
	steps := []step{
		{"poller", func(ctx context.Context) error {
			stopPoll()
			return waitDone(ctx, pollDone)
		}},
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
	}
	if shutdownOtelx != nil {
		steps = append(steps, step{"otel", shutdownOtelx})
	}
	sd.run(steps)
	return nil
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd, unixgram dial has no context variant
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
