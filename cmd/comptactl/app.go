package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/comptamaroc/webclient/apiclient"
	"github.com/comptamaroc/webclient/auth"
	"github.com/comptamaroc/webclient/internal/config"
	"github.com/comptamaroc/webclient/internal/logging"
	"github.com/comptamaroc/webclient/session"
	"github.com/comptamaroc/webclient/storage"
	"github.com/comptamaroc/webclient/storage/filestore"
	"github.com/comptamaroc/webclient/storage/memstore"
	"github.com/comptamaroc/webclient/storage/redisstore"
	"github.com/comptamaroc/webclient/storage/sqlitestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	metrics  bool
	logLevel string
}

// app is the wired client stack one command runs against.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    storage.Store
	registry *prometheus.Registry
	client   *apiclient.Client
	service  *auth.Service
	manager  *session.Manager
	out      io.Writer
	errOut   io.Writer
	closers  []func() error
}

// newApp builds config, logger, store, API client, auth service and session
// manager, then restores the persisted session.
func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	level := cfg.GetLogLevel()
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.New(level, cfg.GetEnv(), cmd.ErrOrStderr()),
		registry: prometheus.NewRegistry(),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}

	ctx := cmd.Context()
	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}

	a.client, err = apiclient.New(cfg.GetAPIBaseURL(), a.store,
		apiclient.WithTimeout(cfg.GetRequestTimeout()),
		apiclient.WithMetrics(apiclient.NewMetrics(a.registry)),
		apiclient.WithLogger(a.logger),
		apiclient.WithLoginRedirector(apiclient.RedirectFunc(func(ctx context.Context) {
			a.manager.SignedOut(ctx)
		})),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	if a.service, err = auth.NewService(a.client, a.store, auth.WithLogger(a.logger)); err != nil {
		a.close()
		return nil, err
	}

	a.manager, err = session.NewManager(a.service, a.store,
		session.WithLogger(a.logger),
		session.WithNavigator(a.navigateToLogin),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.manager.Start(ctx)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	switch a.cfg.GetStorageBackend() {
	case config.StorageMemory:
		return memstore.New(), nil
	case config.StorageSQLite:
		s, err := sqlitestore.Open(ctx, a.cfg.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.GetRedisAddr()})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.GetRedisAddr(), err)
		}
		a.closers = append(a.closers, rdb.Close)
		return redisstore.New(rdb, a.cfg.GetRedisPrefix()), nil
	default:
		return filestore.New(a.cfg.GetStorageFile())
	}
}

// navigateToLogin is the terminal's version of sending the user to the login page.
func (a *app) navigateToLogin(context.Context) {
	fmt.Fprintf(a.errOut, "%s Sign in again with \"%s login\" (%s).\n",
		colour(Yellow, "Session expired."), appName, a.cfg.GetLoginPath())
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}

// finish prints the metrics when asked and releases the store.
func (a *app) finish(opts *globalOptions) {
	if opts.metrics {
		a.printMetrics()
	}
	a.close()
}

func (a *app) printMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Unable to gather metrics")
		return
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(a.out, colour(Gray, l))
	}
}

// withApp runs fn against a freshly built app.
func withApp(opts *globalOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.finish(opts)
		return fn(cmd, a, args)
	}
}
