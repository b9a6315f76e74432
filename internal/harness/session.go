package harness

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/browser"
	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/network"
	"github.com/openbraininstitute/obi-linkcheck/internal/pages"
	"github.com/openbraininstitute/obi-linkcheck/internal/reporting"
	"github.com/openbraininstitute/obi-linkcheck/internal/store"
)

// SessionFactory opens a browser session. The returned func releases it.
type SessionFactory func(ctx context.Context) (pages.Driver, func(context.Context) error, error)

// ResultStore persists finished runs.
type ResultStore interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, report *reporting.Report) error
}

// StoreFactory connects to the run history database. The returned func
// closes the connection.
type StoreFactory func(ctx context.Context, databaseURL string) (ResultStore, func(), error)

// NewBrowserSessionFactory launches a browser from cfg for every session.
func NewBrowserSessionFactory(cfg config.BrowserConfig, logger *zap.Logger) SessionFactory {
	return func(ctx context.Context) (pages.Driver, func(context.Context) error, error) {
		mgr, err := browser.NewManager(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		session, err := mgr.NewSession(ctx)
		if err != nil {
			_ = mgr.Shutdown(ctx)
			return nil, nil, err
		}
		release := func(ctx context.Context) error {
			return errors.Join(session.Close(ctx), mgr.Shutdown(ctx))
		}
		return session, release, nil
	}
}

// NewPostgresStoreFactory connects with pgx.
func NewPostgresStoreFactory(logger *zap.Logger) StoreFactory {
	return func(ctx context.Context, databaseURL string) (ResultStore, func(), error) {
		s, closeFn, err := store.Connect(ctx, databaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closeFn, nil
	}
}

// NewHTTPClient builds the link checking client from the check settings.
func NewHTTPClient(cfg config.CheckConfig, logger *zap.Logger) *http.Client {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.Timeout
	clientCfg.MaxRedirects = cfg.MaxRedirects
	clientCfg.IgnoreTLSErrors = cfg.IgnoreTLSErrors
	clientCfg.Logger = logger.Named("http")
	return network.NewClient(clientCfg)
}
