package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

// Snapshot is what a page visit leaves behind for link collection.
type Snapshot struct {
	// Route is the URL that was requested.
	Route string
	// URL is where the browser ended up.
	URL    string
	Markup string
	Hrefs  []string
}

// HomePage walks the application routes inside an authenticated session.
type HomePage struct {
	*BasePage
	login  *LoginPage
	routes []string
	crawl  config.CrawlConfig
	auth   config.AuthConfig
}

// NewHomePage returns a home page that visits routes in order.
func NewHomePage(base *BasePage, login *LoginPage, routes []string, crawl config.CrawlConfig, auth config.AuthConfig) *HomePage {
	return &HomePage{
		BasePage: base,
		login:    login,
		routes:   routes,
		crawl:    crawl,
		auth:     auth,
	}
}

// GoToHomePage opens the base URL.
func (p *HomePage) GoToHomePage(ctx context.Context) error {
	if err := p.GoToPage(ctx, ""); err != nil {
		return err
	}
	p.logger.Info("Navigated to homepage")
	return nil
}

// IsLoggedIn reports whether the current URL is inside the virtual lab.
func (p *HomePage) IsLoggedIn(ctx context.Context) bool {
	return p.urlContains(ctx, p.auth.LoggedInMarker)
}

// EnsureLoggedIn logs in unless the session is already authenticated.
func (p *HomePage) EnsureLoggedIn(ctx context.Context) error {
	if p.IsLoggedIn(ctx) {
		p.logger.Info("Already logged in")
		return nil
	}
	return p.login.Login(ctx)
}

// Visit opens route and returns the rendered page. If the application
// bounced to the login page, it logs in again once and retries.
func (p *HomePage) Visit(ctx context.Context, route string) (Snapshot, error) {
	p.logger.Info("Navigating", zap.String("route", route))
	if err := p.open(ctx, route); err != nil {
		return Snapshot{}, err
	}

	if p.sessionLost(ctx) {
		if err := sleep(ctx, p.crawl.SessionRecheckDelay); err != nil {
			return Snapshot{}, err
		}
		if p.sessionLost(ctx) {
			p.logger.Warn("Session lost, logging in again", zap.String("route", route))
			if err := p.login.Login(ctx); err != nil {
				return Snapshot{}, fmt.Errorf("re-login before %s: %w", route, err)
			}
			if p.sessionLost(ctx) {
				p.logger.Error("Re-login failed")
				return Snapshot{}, fmt.Errorf("%w: still on login page after re-login", ErrLoginFailed)
			}
		}
		if err := p.open(ctx, route); err != nil {
			return Snapshot{}, err
		}
	}

	if err := p.FindElement(ctx, locators.Body, p.crawl.BodyTimeout); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Route: route}
	var err error
	if snap.URL, err = p.CurrentURL(ctx); err != nil {
		p.logger.Warn("Could not read current url", zap.Error(err))
		snap.URL = route
	}
	if snap.Hrefs, err = p.GetAllLinks(ctx); err != nil {
		p.logger.Warn("Could not read anchors", zap.String("url", snap.URL), zap.Error(err))
	}
	if snap.Markup, err = p.PageSource(ctx); err != nil {
		p.logger.Warn("Could not read page source", zap.String("url", snap.URL), zap.Error(err))
	}

	p.logger.Info("Arrived", zap.String("url", snap.URL), zap.Int("anchors", len(snap.Hrefs)))
	return snap, nil
}

// GetAllLinksFromAllPages visits every route in order. It stops at the
// first fatal error and returns the snapshots taken so far.
func (p *HomePage) GetAllLinksFromAllPages(ctx context.Context) ([]Snapshot, error) {
	if len(p.routes) == 0 {
		p.logger.Warn("No pages defined for scraping")
		return nil, nil
	}
	p.logger.Info("Starting link extraction", zap.Int("pages", len(p.routes)))

	snapshots := make([]Snapshot, 0, len(p.routes))
	for _, route := range p.routes {
		snap, err := p.Visit(ctx, route)
		if err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (p *HomePage) open(ctx context.Context, route string) error {
	if err := p.GoToPage(ctx, route); err != nil {
		return err
	}
	return sleep(ctx, p.crawl.SettleDelay)
}

func (p *HomePage) sessionLost(ctx context.Context) bool {
	return p.auth.SessionLostMarker != "" && p.urlContains(ctx, p.auth.SessionLostMarker)
}
