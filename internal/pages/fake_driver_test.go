package pages

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap/zaptest"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
)

const (
	testBaseURL  = "https://example.org/app/virtual-lab"
	testIdPURL   = "https://idp.example.org/realms/obi/protocol/openid-connect/auth?client_id=app"
	testLoginURL = "https://example.org/app/login?next=lab"
)

type fakePage struct {
	markup string
	hrefs  []string
}

// fakeDriver is an in-memory browser. Navigation moves the current URL,
// clicking the login button opens the identity provider and submitting the
// password lands on afterSubmit.
type fakeDriver struct {
	mu sync.Mutex

	current     string
	readyState  string
	pages       map[string]fakePage
	missing     map[locators.Locator]bool
	navErrs     map[string][]error
	bounces     map[string]int
	afterSubmit string

	calls          []string
	typed          map[locators.Locator]string
	attrs          map[locators.Locator]string
	cookiesCleared int
	closed         bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		readyState:  "complete",
		pages:       make(map[string]fakePage),
		missing:     make(map[locators.Locator]bool),
		navErrs:     make(map[string][]error),
		bounces:     make(map[string]int),
		afterSubmit: testBaseURL,
		typed:       make(map[locators.Locator]string),
		attrs:       make(map[locators.Locator]string),
	}
}

func (f *fakeDriver) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate %s", url)
	if errs := f.navErrs[url]; len(errs) > 0 {
		f.navErrs[url] = errs[1:]
		return errs[0]
	}
	if f.bounces[url] > 0 {
		f.bounces[url]--
		f.current = testLoginURL
		return nil
	}
	f.current = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeDriver) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[f.current].markup, nil
}

// wait blocks until ctx ends when loc is missing, like a chromedp query.
func (f *fakeDriver) wait(ctx context.Context, loc locators.Locator) error {
	f.mu.Lock()
	missing := f.missing[loc]
	f.mu.Unlock()
	if !missing {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeDriver) WaitPresent(ctx context.Context, loc locators.Locator) error {
	return f.wait(ctx, loc)
}

func (f *fakeDriver) WaitVisible(ctx context.Context, loc locators.Locator) error {
	return f.wait(ctx, loc)
}

func (f *fakeDriver) Exists(ctx context.Context, loc locators.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[loc], nil
}

func (f *fakeDriver) Click(ctx context.Context, loc locators.Locator) error {
	if err := f.wait(ctx, loc); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click %s", loc)
	if loc == locators.Login.LoginButton {
		f.current = testIdPURL
	}
	return nil
}

func (f *fakeDriver) SendKeys(ctx context.Context, loc locators.Locator, text string) error {
	if err := f.wait(ctx, loc); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("type %s", loc)
	f.typed[loc] = text
	if loc == locators.Login.Password && strings.HasSuffix(text, kb.Enter) {
		f.current = f.afterSubmit
	}
	return nil
}

func (f *fakeDriver) SetAttribute(ctx context.Context, loc locators.Locator, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set %s %s", loc, name)
	f.attrs[loc] = name + "=" + value
	return nil
}

func (f *fakeDriver) ExecuteScript(ctx context.Context, expression string, res interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if expression == "document.readyState" {
		if out, ok := res.(*string); ok {
			*out = f.readyState
		}
		return nil
	}
	return fmt.Errorf("unexpected script %q", expression)
}

func (f *fakeDriver) AnchorHrefs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pages[f.current].hrefs...), nil
}

func (f *fakeDriver) DeleteAllCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete cookies")
	f.cookiesCleared++
	return nil
}

func (f *fakeDriver) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// testAuth returns auth settings with short timeouts.
func testAuth() config.AuthConfig {
	auth := config.NewDefaultConfig().Auth()
	auth.Username = "researcher"
	auth.Password = "s3cret"
	auth.RedirectTimeout = 200 * time.Millisecond
	auth.LoginTimeout = 200 * time.Millisecond
	return auth
}

func testCrawl() config.CrawlConfig {
	crawl := config.NewDefaultConfig().Crawl()
	crawl.SettleDelay = 0
	crawl.SessionRecheckDelay = 0
	crawl.LandingRetryDelay = 10 * time.Millisecond
	crawl.BodyTimeout = 100 * time.Millisecond
	return crawl
}

type testPages struct {
	driver  *fakeDriver
	base    *BasePage
	landing *LandingPage
	login   *LoginPage
	home    *HomePage
}

func newTestPages(t *testing.T, routes ...string) *testPages {
	t.Helper()
	driver := newFakeDriver()
	base := NewBasePage(driver, testBaseURL, 200*time.Millisecond, zaptest.NewLogger(t))
	base.pollInterval = 5 * time.Millisecond

	crawl := testCrawl()
	auth := testAuth()
	landing := NewLandingPage(base, crawl.LandingRetries, crawl.LandingRetryDelay, 100*time.Millisecond)
	login := NewLoginPage(base, landing, auth)
	return &testPages{
		driver:  driver,
		base:    base,
		landing: landing,
		login:   login,
		home:    NewHomePage(base, login, routes, crawl, auth),
	}
}
