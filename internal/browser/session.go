// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

// anchorHrefsJS returns the resolved href of every anchor in the document.
const anchorHrefsJS = `Array.from(document.querySelectorAll('a[href]'), a => a.href)`

// Session is a single browser tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	pageLoadTimeout time.Duration
	waitTimeout     time.Duration

	// runActions executes actions against the tab. Tests replace it.
	runActions func(ctx context.Context, actions ...chromedp.Action) error
	closeTab   func() error

	onClose   func()
	closeOnce sync.Once
	closeErr  error
}

func newSession(id string, tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	s := &Session{
		id:              id,
		ctx:             tabCtx,
		cancel:          cancel,
		logger:          logger.Named("session").With(zap.String("session_id", id)),
		pageLoadTimeout: cfg.PageLoadTimeout,
		waitTimeout:     cfg.WaitTimeout,
	}
	s.runActions = s.runOnTab
	s.closeTab = func() error { return chromedp.Cancel(s.ctx) }
	return s
}

func (s *Session) runOnTab(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

// run executes actions bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.runActions(ctx, actions...)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	if err := s.run(ctx, s.pageLoadTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.waitTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	return location, nil
}

// PageSource returns the serialized document.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.waitTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return html, nil
}

// WaitPresent waits until loc is in the DOM.
func (s *Session) WaitPresent(ctx context.Context, loc locators.Locator) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.WaitReady(loc.Selector, loc.QueryOptions()...)); err != nil {
		return fmt.Errorf("element %s not present: %w", loc, err)
	}
	return nil
}

// WaitVisible waits until loc is visible.
func (s *Session) WaitVisible(ctx context.Context, loc locators.Locator) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.WaitVisible(loc.Selector, loc.QueryOptions()...)); err != nil {
		return fmt.Errorf("element %s not visible: %w", loc, err)
	}
	return nil
}

// Exists reports whether loc currently matches anything. It does not wait.
func (s *Session) Exists(ctx context.Context, loc locators.Locator) (bool, error) {
	var nodes []*cdp.Node
	opts := append(loc.QueryOptions(), chromedp.AtLeast(0))
	if err := s.run(ctx, s.waitTimeout, chromedp.Nodes(loc.Selector, &nodes, opts...)); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	return len(nodes) > 0, nil
}

// Click waits for loc to be visible and clicks it.
func (s *Session) Click(ctx context.Context, loc locators.Locator) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.Click(loc.Selector, loc.QueryOptions()...)); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

// SendKeys types text into loc. Key constants from the kb package are
// dispatched as key presses.
func (s *Session) SendKeys(ctx context.Context, loc locators.Locator, text string) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.SendKeys(loc.Selector, text, loc.QueryOptions()...)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", loc, err)
	}
	return nil
}

// SetAttribute sets an attribute on the first node matching loc.
func (s *Session) SetAttribute(ctx context.Context, loc locators.Locator, name, value string) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.SetAttributeValue(loc.Selector, name, value, loc.QueryOptions()...)); err != nil {
		return fmt.Errorf("failed to set %s on %s: %w", name, loc, err)
	}
	return nil
}

// ExecuteScript evaluates expression and decodes the result into res, which
// may be nil.
func (s *Session) ExecuteScript(ctx context.Context, expression string, res interface{}) error {
	if err := s.run(ctx, s.waitTimeout, chromedp.Evaluate(expression, res)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// AnchorHrefs returns the browser-resolved href of every anchor.
func (s *Session) AnchorHrefs(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := s.ExecuteScript(ctx, anchorHrefsJS, &hrefs); err != nil {
		return nil, fmt.Errorf("failed to collect anchors: %w", err)
	}
	return hrefs, nil
}

// DeleteAllCookies clears every cookie in the browser.
func (s *Session) DeleteAllCookies(ctx context.Context) error {
	clear := chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	})
	if err := s.run(ctx, s.waitTimeout, clear); err != nil {
		return fmt.Errorf("failed to delete cookies: %w", err)
	}
	return nil
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- s.closeTab() }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("failed to close session %s: %w", s.id, err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("closing session %s: %w", s.id, ctx.Err())
		}

		if s.cancel != nil {
			s.cancel()
		}
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Session closed")
	})
	return s.closeErr
}
