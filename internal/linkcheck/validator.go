package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxDrain bounds how much of a response body is read to allow connection reuse.
const maxDrain = 64 << 10

// Target is a link queued for validation.
type Target struct {
	URL      string
	Source   string
	Context  string
	External bool
}

// Options configure request shape and pacing.
type Options struct {
	Method         string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	// Referer is sent with every request; some CDNs reject bare requests.
	Referer string
	// Delay is the minimum spacing between request starts. Zero disables pacing.
	Delay time.Duration
	// Concurrency is the number of in-flight checks. 1 keeps checks sequential.
	Concurrency int
}

// Validator checks links over HTTP.
type Validator struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewValidator creates a Validator. The client decides timeouts and redirect policy.
func NewValidator(client *http.Client, opts Options, logger *zap.Logger) *Validator {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	opts.Method = strings.ToUpper(opts.Method)
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	v := &Validator{
		client: client,
		opts:   opts,
		logger: logger.Named("validator"),
		now:    time.Now,
	}
	if opts.Delay > 0 {
		v.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	return v
}

// Check requests link once and returns the final status code after redirects.
func (v *Validator) Check(ctx context.Context, link string) (int, error) {
	status, err := v.do(ctx, v.opts.Method, link)
	if err == nil && v.opts.Method == http.MethodHead &&
		(status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		return v.do(ctx, http.MethodGet, link)
	}
	return status, err
}

func (v *Validator) do(ctx context.Context, method, link string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", v.opts.UserAgent)
	if v.opts.Accept != "" {
		req.Header.Set("Accept", v.opts.Accept)
	}
	if v.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", v.opts.AcceptLanguage)
	}
	if v.opts.Referer != "" {
		req.Header.Set("Referer", v.opts.Referer)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	return resp.StatusCode, nil
}

// checkOne produces the Result for a target. Transport failures become a
// broken result with StatusRequestFailed. It reports false when the check
// was cut short by ctx, so nothing is recorded for an interrupted request.
func (v *Validator) checkOne(ctx context.Context, t Target) (Result, bool) {
	r := Result{
		URL:        t.URL,
		SourcePage: t.Source,
		Context:    t.Context,
		External:   t.External,
	}

	status, err := v.Check(ctx, t.URL)
	r.CheckedAt = v.now()
	if err != nil {
		if ctx.Err() != nil {
			v.logger.Debug("Check interrupted", zap.String("url", t.URL), zap.Error(err))
			return r, false
		}
		r.StatusCode = StatusRequestFailed
		r.Class = Broken
		r.Error = err.Error()
		v.logger.Warn("Request failed", zap.String("url", t.URL), zap.String("page", t.Source), zap.Error(err))
		return r, true
	}

	r.StatusCode = status
	r.Class = Classify(status)
	switch r.Class {
	case Working:
		v.logger.Debug("Link ok", zap.String("url", t.URL), zap.Int("status", status))
	case Forbidden:
		v.logger.Warn("Link forbidden", zap.String("url", t.URL), zap.String("page", t.Source))
	default:
		v.logger.Warn("Broken link",
			zap.String("url", t.URL),
			zap.Int("status", status),
			zap.String("found_in", t.Context),
			zap.String("page", t.Source),
		)
	}
	return r, true
}

// Validate checks all targets and returns results in input order. observe,
// if non-nil, is called once per result as soon as it is available; calls
// never overlap. When ctx is cancelled, or its deadline leaves no room for the
// next paced request, scheduling stops and the results gathered so far are
// returned with the error.
func (v *Validator) Validate(ctx context.Context, targets []Target, observe func(Result)) ([]Result, error) {
	results := make([]Result, len(targets))
	done := make([]bool, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Concurrency)

	var stopErr error
	for i, t := range targets {
		if v.limiter != nil {
			if err := v.limiter.Wait(gctx); err != nil {
				stopErr = pacingError(gctx, err)
				break
			}
		}
		if err := gctx.Err(); err != nil {
			stopErr = err
			break
		}
		i, t := i, t
		g.Go(func() error {
			r, ok := v.checkOne(gctx, t)
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			results[i] = r
			done[i] = true
			if observe != nil {
				observe(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		stopErr = err
	}
	if stopErr == nil {
		return results, nil
	}

	partial := make([]Result, 0, len(results))
	for i, r := range results {
		if done[i] {
			partial = append(partial, r)
		}
	}
	return partial, stopErr
}

// pacingError maps a limiter failure to a context error. The limiter fails
// early when the wait would overrun the deadline, before ctx itself expires.
func pacingError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
}
