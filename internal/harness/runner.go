// Package harness wires the page objects, the collector and the validator
// into a complete link check run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/config"
	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
	"github.com/openbraininstitute/obi-linkcheck/internal/pages"
	"github.com/openbraininstitute/obi-linkcheck/internal/reporting"
	"github.com/openbraininstitute/obi-linkcheck/internal/routes"
)

var (
	// ErrNoLinksFound fails a run whose pages yielded no links at all.
	ErrNoLinksFound = errors.New("no links found on the website")
	// ErrIssuesFound is returned when check.fail_on_broken is set and at
	// least one link is forbidden or broken.
	ErrIssuesFound = errors.New("broken or forbidden links found")
)

const teardownTimeout = 15 * time.Second

// Runner executes link check runs.
type Runner struct {
	cfg    config.Interface
	logger *zap.Logger

	openSession SessionFactory
	openStore   StoreFactory
	client      *http.Client
	out         io.Writer
	now         func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSessionFactory replaces the browser launcher.
func WithSessionFactory(f SessionFactory) Option {
	return func(r *Runner) { r.openSession = f }
}

// WithStoreFactory replaces the database connector.
func WithStoreFactory(f StoreFactory) Option {
	return func(r *Runner) { r.openStore = f }
}

// WithHTTPClient replaces the client used to validate links.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithOutput sets where the run summary is printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// NewRunner builds a runner with the production browser, store and client.
func NewRunner(cfg config.Interface, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: logger.Named("harness"),
		out:    os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.openSession == nil {
		r.openSession = NewBrowserSessionFactory(cfg.Browser(), logger)
	}
	if r.openStore == nil {
		r.openStore = NewPostgresStoreFactory(logger)
	}
	if r.client == nil {
		r.client = NewHTTPClient(cfg.Check(), logger)
	}
	return r
}

// crawledPage is a visited route with its anchors indexed for element context.
type crawledPage struct {
	anchors *linkcheck.PageContext
}

// Run logs in, crawls every route, validates every discovered link and
// writes the logs and reports. A non-nil report is returned whenever
// validation happened, even if the run fails afterwards.
func (r *Runner) Run(ctx context.Context) (*reporting.Report, error) {
	started := r.now()
	r.logger.Info("Starting link check run")

	target, err := r.cfg.Target().Resolve()
	if err != nil {
		return nil, err
	}
	auth := r.cfg.Auth()
	if !auth.HasCredentials() {
		return nil, pages.ErrMissingCredentials
	}
	siteRoot, err := routes.SiteRoot(target.BaseURL)
	if err != nil {
		return nil, err
	}

	driver, release, err := r.openSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer r.teardown(driver, release)

	browserCfg := r.cfg.Browser()
	crawl := r.cfg.Crawl()
	pageLogger := r.logger.Named("pages")
	base := pages.NewBasePage(driver, target.BaseURL, browserCfg.WaitTimeout, pageLogger)
	landing := pages.NewLandingPage(base, crawl.LandingRetries, crawl.LandingRetryDelay, browserCfg.PageLoadTimeout)
	login := pages.NewLoginPage(base, landing, auth)
	home := pages.NewHomePage(base, login, routes.Generate(siteRoot, target.LabID, target.ProjectID), crawl, auth)

	if err := home.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}

	snapshots, err := home.GetAllLinksFromAllPages(ctx)
	if err != nil {
		return nil, err
	}

	sources, crawled, visits := r.collect(snapshots)
	if sources.Len() == 0 {
		r.logger.Error("No links found", zap.Int("pages", len(visits)))
		return nil, ErrNoLinksFound
	}
	r.logger.Info("Total unique links found", zap.Int("links", sources.Len()))

	targets, err := r.buildTargets(target.BaseURL, sources, crawled)
	if err != nil {
		return nil, err
	}

	results, err := r.validate(ctx, target.BaseURL, targets)
	if err != nil {
		return nil, err
	}

	report := &reporting.Report{
		RunID:       uuid.NewString(),
		Environment: target.Name,
		BaseURL:     target.BaseURL,
		StartedAt:   started,
		FinishedAt:  r.now(),
		Pages:       visits,
		Results:     results,
		Summary:     linkcheck.Summarize(results),
	}
	r.publish(ctx, report)
	return report, r.verdict(report.Summary)
}

// Check validates urls without a browser. Source pages are unknown.
func (r *Runner) Check(ctx context.Context, urls []string) (*reporting.Report, error) {
	started := r.now()
	targets := make([]linkcheck.Target, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, linkcheck.Target{URL: u, Source: "[command line]"})
	}

	results, err := r.validate(ctx, "", targets)
	if err != nil {
		return nil, err
	}
	report := &reporting.Report{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		FinishedAt: r.now(),
		Results:    results,
		Summary:    linkcheck.Summarize(results),
	}
	r.publish(ctx, report)
	return report, r.verdict(report.Summary)
}

func (r *Runner) collect(snapshots []pages.Snapshot) (*linkcheck.Sources, map[string]crawledPage, []reporting.PageVisit) {
	crawl := r.cfg.Crawl()
	collector := linkcheck.NewCollector(linkcheck.ExtractOptions{RowKeys: crawl.RowKeys, OnClick: crawl.OnClick}, r.logger)

	sources := linkcheck.NewSources()
	crawled := make(map[string]crawledPage, len(snapshots))
	visits := make([]reporting.PageVisit, 0, len(snapshots))
	for _, snap := range snapshots {
		links := collector.Collect(linkcheck.Page{URL: snap.URL, Markup: snap.Markup, Hrefs: snap.Hrefs})
		sources.Add(snap.Route, links)
		if u, err := url.Parse(snap.URL); err == nil {
			crawled[snap.Route] = crawledPage{anchors: linkcheck.NewPageContext(snap.Markup, u)}
		}
		visits = append(visits, reporting.PageVisit{Route: snap.Route, URL: snap.URL, Links: len(links)})
		r.logger.Info("Found links", zap.String("page", snap.Route), zap.Int("links", len(links)))
	}
	return sources, crawled, visits
}

func (r *Runner) buildTargets(baseURL string, sources *linkcheck.Sources, crawled map[string]crawledPage) ([]linkcheck.Target, error) {
	scope, err := linkcheck.NewScope(baseURL)
	if err != nil {
		return nil, err
	}
	skipExternal := r.cfg.Check().SkipExternal

	var targets []linkcheck.Target
	skipped := 0
	for _, link := range sources.URLs() {
		source, _ := sources.Source(link)
		external := !scope.IsInternal(link)
		if external && skipExternal {
			skipped++
			continue
		}
		t := linkcheck.Target{URL: link, Source: source, External: external}
		if page, ok := crawled[source]; ok {
			t.Context = page.anchors.Describe(link)
		}
		targets = append(targets, t)
	}
	if skipped > 0 {
		r.logger.Info("Skipped external links", zap.Int("count", skipped), zap.String("root_domain", scope.RootDomain()))
	}
	return targets, nil
}

func (r *Runner) validate(ctx context.Context, referer string, targets []linkcheck.Target) ([]linkcheck.Result, error) {
	reportCfg := r.cfg.Report()
	logs, err := linkcheck.CreateLogWriter(reportCfg.LinkLogDir, reportCfg.BrokenLog, reportCfg.WorkingLog)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := logs.Close(); err != nil {
			r.logger.Error("Failed to close link logs", zap.Error(err))
		}
	}()

	check := r.cfg.Check()
	validator := linkcheck.NewValidator(r.client, linkcheck.Options{
		Method:         check.Method,
		UserAgent:      check.UserAgent,
		Accept:         check.Accept,
		AcceptLanguage: check.AcceptLanguage,
		Referer:        referer,
		Delay:          check.Delay,
		Concurrency:    check.Concurrency,
	}, r.logger)

	results, err := validator.Validate(ctx, targets, func(res linkcheck.Result) {
		if err := logs.Record(res); err != nil {
			r.logger.Error("Failed to write link log", zap.String("url", res.URL), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("link validation interrupted: %w", err)
	}
	return results, nil
}

// publish writes reports, persists the run and prints the summary. None of
// these steps fail the run.
func (r *Runner) publish(ctx context.Context, report *reporting.Report) {
	reportCfg := r.cfg.Report()
	if len(reportCfg.Formats) > 0 {
		paths, err := reporting.WriteAll(reportCfg.Dir, reportCfg.Formats, report)
		if err != nil {
			r.logger.Error("Failed to write reports", zap.Error(err))
		}
		for _, p := range paths {
			r.logger.Info("Report written", zap.String("path", p))
		}
	}

	if dbURL := r.cfg.Database().URL; dbURL != "" {
		if err := r.persist(ctx, dbURL, report); err != nil {
			r.logger.Error("Failed to persist run", zap.Error(err))
		}
	}

	r.printSummary(report)
	r.logger.Info("Run completed",
		zap.String("run_id", report.RunID),
		zap.Int("total", report.Summary.Total),
		zap.Int("working", report.Summary.Working),
		zap.Int("forbidden", report.Summary.Forbidden),
		zap.Int("broken", report.Summary.Broken),
		zap.Duration("duration", report.Duration()),
	)
}

func (r *Runner) persist(ctx context.Context, dbURL string, report *reporting.Report) error {
	s, closeStore, err := r.openStore(ctx, dbURL)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	return s.SaveRun(ctx, report)
}

func (r *Runner) printSummary(report *reporting.Report) {
	s := report.Summary
	fmt.Fprintln(r.out, "\nTest Summary:")
	if len(report.Pages) > 0 {
		fmt.Fprintf(r.out, "  Pages visited:   %d\n", len(report.Pages))
	}
	fmt.Fprintf(r.out, "  Total links:     %d\n", s.Total)
	fmt.Fprintf(r.out, "  Valid links:     %d\n", s.Working)
	fmt.Fprintf(r.out, "  Forbidden links: %d\n", s.Forbidden)
	fmt.Fprintf(r.out, "  Broken links:    %d\n", s.Broken)
}

func (r *Runner) verdict(s linkcheck.Summary) error {
	if r.cfg.Check().FailOnBroken && s.Issues() > 0 {
		return fmt.Errorf("%w: %d forbidden, %d broken", ErrIssuesFound, s.Forbidden, s.Broken)
	}
	return nil
}

// teardown clears cookies and closes the session even when the run context
// is already canceled.
func (r *Runner) teardown(driver pages.Driver, release func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := driver.DeleteAllCookies(ctx); err != nil {
		r.logger.Warn("Failed to delete cookies on teardown", zap.Error(err))
	}
	if release != nil {
		if err := release(ctx); err != nil {
			r.logger.Warn("Failed to release browser session", zap.Error(err))
		}
	}
}
