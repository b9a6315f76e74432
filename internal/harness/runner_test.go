package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chromedp/chromedp/kb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
	"github.com/openbraininstitute/obi-linkcheck/internal/locators"
	"github.com/openbraininstitute/obi-linkcheck/internal/pages"
	"github.com/openbraininstitute/obi-linkcheck/internal/reporting"
)

// siteDriver is a scripted browser for a fake deployment. Pages are keyed by
// URL; anything else renders empty.
type siteDriver struct {
	mu          sync.Mutex
	current     string
	baseURL     string
	idpURL      string
	afterSubmit string
	markup      map[string]string
	hrefs       map[string][]string
	navigations []string
	cookies     int
}

func newSiteDriver(baseURL string) *siteDriver {
	return &siteDriver{
		baseURL:     baseURL,
		idpURL:      "https://idp.example.org/realms/obi/protocol/openid-connect/auth",
		afterSubmit: baseURL,
		markup:      make(map[string]string),
		hrefs:       make(map[string][]string),
	}
}

func (d *siteDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations = append(d.navigations, url)
	d.current = url
	return nil
}

func (d *siteDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *siteDriver) PageSource(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.markup[d.current], nil
}

func (d *siteDriver) WaitPresent(context.Context, locators.Locator) error { return nil }
func (d *siteDriver) WaitVisible(context.Context, locators.Locator) error { return nil }

func (d *siteDriver) Exists(context.Context, locators.Locator) (bool, error) { return true, nil }

func (d *siteDriver) Click(_ context.Context, loc locators.Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if loc == locators.Login.LoginButton {
		d.current = d.idpURL
	}
	return nil
}

func (d *siteDriver) SendKeys(_ context.Context, loc locators.Locator, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if loc == locators.Login.Password && strings.HasSuffix(text, kb.Enter) {
		d.current = d.afterSubmit
	}
	return nil
}

func (d *siteDriver) SetAttribute(context.Context, locators.Locator, string, string) error {
	return nil
}

func (d *siteDriver) ExecuteScript(_ context.Context, expression string, res interface{}) error {
	if out, ok := res.(*string); ok && expression == "document.readyState" {
		*out = "complete"
		return nil
	}
	return fmt.Errorf("unexpected script %q", expression)
}

func (d *siteDriver) AnchorHrefs(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hrefs[d.current], nil
}

func (d *siteDriver) DeleteAllCookies(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies++
	return nil
}

func (d *siteDriver) Close(context.Context) error { return nil }

type fakeStore struct {
	schema bool
	saved  []*reporting.Report
	err    error
}

func (s *fakeStore) EnsureSchema(context.Context) error {
	s.schema = true
	return nil
}

func (s *fakeStore) SaveRun(_ context.Context, r *reporting.Report) error {
	s.saved = append(s.saved, r)
	return s.err
}

// linkServer answers /ok with 200, /forbidden with 403 and /missing with 404.
func linkServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	mux.HandleFunc("/missing", http.NotFound)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type fixture struct {
	server   *httptest.Server
	driver   *siteDriver
	store    *fakeStore
	out      *bytes.Buffer
	logDir   string
	released int
	opened   int
}

func newFixture(t *testing.T, overrides map[string]interface{}) (*fixture, *Runner) {
	t.Helper()
	server := linkServer(t)
	baseURL := server.URL + "/app/virtual-lab"
	dir := t.TempDir()

	v := viper.New()
	config.SetDefaults(v)
	settings := map[string]interface{}{
		"target.env":                             "staging",
		"target.environments.staging.base_url":   baseURL,
		"target.environments.staging.lab_id":     "lab-1",
		"target.environments.staging.project_id": "project-1",
		"auth.username":                          "researcher",
		"auth.password":                          "s3cret",
		"auth.redirect_timeout":                  "200ms",
		"auth.login_timeout":                     "200ms",
		"crawl.settle_delay":                     "0s",
		"crawl.session_recheck_delay":            "0s",
		"crawl.landing_retry_delay":              "0s",
		"crawl.body_timeout":                     "200ms",
		"browser.wait_timeout":                   "200ms",
		"browser.page_load_timeout":              "200ms",
		"check.timeout":                          "2s",
		"report.dir":                             filepath.Join(dir, "reports"),
		"report.link_log_dir":                    dir,
		"report.formats":                         []string{"json"},
		"database.url":                           "postgres://linkcheck@localhost/linkcheck",
		"logger.log_file":                        filepath.Join(dir, "report.log"),
	}
	for k, val := range overrides {
		settings[k] = val
	}
	for k, val := range settings {
		v.Set(k, val)
	}
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)

	f := &fixture{
		server: server,
		driver: newSiteDriver(baseURL),
		store:  &fakeStore{},
		out:    &bytes.Buffer{},
		logDir: dir,
	}

	home := server.URL
	f.driver.markup[home] = `<html><body><ul>
		<li class="nav"><a href="/ok">Fine</a></li>
		<li class="nav"><a href="/forbidden">Admin</a></li>
		<li class="nav"><a href="/missing">Gone</a></li>
	</ul></body></html>`
	f.driver.hrefs[home] = []string{server.URL + "/ok", server.URL + "/forbidden", server.URL + "/missing"}

	runner := NewRunner(cfg, zaptest.NewLogger(t),
		WithSessionFactory(func(context.Context) (pages.Driver, func(context.Context) error, error) {
			f.opened++
			return f.driver, func(context.Context) error {
				f.released++
				return nil
			}, nil
		}),
		WithStoreFactory(func(context.Context, string) (ResultStore, func(), error) {
			return f.store, func() {}, nil
		}),
		WithOutput(f.out),
	)
	return f, runner
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestRunner_Run(t *testing.T) {
	f, runner := newFixture(t, nil)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, linkcheck.Summary{Total: 3, Working: 1, Forbidden: 1, Broken: 1}, report.Summary)
	assert.Equal(t, "staging", report.Environment)
	assert.Len(t, report.Pages, 30, "every generated route is visited")
	assert.Equal(t, f.server.URL, report.Pages[0].Route)
	assert.Equal(t, 3, report.Pages[0].Links)

	byURL := make(map[string]linkcheck.Result)
	for _, r := range report.Results {
		byURL[r.URL] = r
		assert.Equal(t, f.server.URL, r.SourcePage)
		assert.False(t, r.External)
	}
	assert.Equal(t, "<li class='nav'> - Gone", byURL[f.server.URL+"/missing"].Context)

	broken := readLines(t, filepath.Join(f.logDir, "broken_links.log"))
	working := readLines(t, filepath.Join(f.logDir, "working_links.log"))
	assert.Len(t, broken, 2)
	assert.Len(t, working, 1)
	assert.Contains(t, strings.Join(broken, "\n"), "/missing → Status 404 | Found in: <li class='nav'> - Gone")

	_, err = os.Stat(filepath.Join(f.logDir, "reports", "report.json"))
	assert.NoError(t, err)

	assert.True(t, f.store.schema)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, report.RunID, f.store.saved[0].RunID)

	assert.Contains(t, f.out.String(), "Broken links:    1")
	assert.Contains(t, f.out.String(), "Forbidden links: 1")

	assert.Equal(t, 1, f.opened)
	assert.Equal(t, 1, f.released)
	assert.Equal(t, 2, f.driver.cookies, "cleared at login and at teardown")
}

func TestRunner_FailOnBroken(t *testing.T) {
	_, runner := newFixture(t, map[string]interface{}{"check.fail_on_broken": true})

	report, err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrIssuesFound)
	require.NotNil(t, report, "report is still produced")
	assert.Contains(t, err.Error(), "1 forbidden, 1 broken")
}

func TestRunner_SkipExternal(t *testing.T) {
	f, runner := newFixture(t, map[string]interface{}{"check.skip_external": true})
	f.driver.hrefs[f.server.URL] = append(f.driver.hrefs[f.server.URL], "https://external.example.com/page")

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	for _, r := range report.Results {
		assert.NotContains(t, r.URL, "external.example.com")
	}
	assert.Equal(t, 3, report.Summary.Total)
}

func TestRunner_MissingCredentials(t *testing.T) {
	f, runner := newFixture(t, map[string]interface{}{"auth.password": ""})

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, pages.ErrMissingCredentials)
	assert.Zero(t, f.opened, "no browser is launched without credentials")
}

func TestRunner_NoLinksFound(t *testing.T) {
	f, runner := newFixture(t, nil)
	delete(f.driver.markup, f.server.URL)
	delete(f.driver.hrefs, f.server.URL)

	report, err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrNoLinksFound)
	assert.Nil(t, report)
	assert.Equal(t, 1, f.released, "session is released on failure")
	assert.Empty(t, f.store.saved)
}

func TestRunner_LoginFailure(t *testing.T) {
	f, runner := newFixture(t, nil)
	f.driver.afterSubmit = f.driver.idpURL

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, pages.ErrLoginFailed)
	assert.Equal(t, 1, f.released)
}

func TestRunner_StoreErrorsDoNotFailRun(t *testing.T) {
	f, runner := newFixture(t, nil)
	f.store.err = errors.New("database is read-only")

	_, err := runner.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunner_SessionFactoryError(t *testing.T) {
	f, runner := newFixture(t, nil)
	boom := errors.New("chrome not found")
	runner.openSession = func(context.Context) (pages.Driver, func(context.Context) error, error) {
		return nil, nil, boom
	}

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, f.released)
}

func TestRunner_Check(t *testing.T) {
	f, runner := newFixture(t, map[string]interface{}{"database.url": ""})

	report, err := runner.Check(context.Background(), []string{f.server.URL + "/ok", f.server.URL + "/missing"})
	require.NoError(t, err)
	assert.Equal(t, linkcheck.Summary{Total: 2, Working: 1, Broken: 1}, report.Summary)
	assert.Equal(t, "[command line]", report.Results[0].SourcePage)
	assert.Zero(t, f.opened)
	assert.Empty(t, f.store.saved)
	assert.Len(t, readLines(t, filepath.Join(f.logDir, "broken_links.log")), 1)
}
