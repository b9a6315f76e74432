package linkcheck

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ExtractOptions enables the heuristics beyond plain anchors.
type ExtractOptions struct {
	// RowKeys inspects data-row-key attributes on table rows. Ant Design
	// tables navigate on row click and some rows carry the target URL there.
	RowKeys bool
	// OnClick inspects onclick handlers on buttons for navigation targets.
	OnClick bool
}

// onClickTarget matches the usual inline navigation idioms and captures the
// quoted target.
var onClickTarget = regexp.MustCompile(`(?:location(?:\.href)?\s*=\s*|location\.(?:assign|replace)\(\s*|window\.open\(\s*)['"]([^'"]+)['"]`)

// ExtractLinks returns the deduplicated, sorted absolute http(s) URLs
// referenced by markup. Relative references resolve against pageURL, or
// against the document's <base href> when present.
func ExtractLinks(markup string, pageURL *url.URL, opts ExtractOptions) ([]string, error) {
	if pageURL == nil || !pageURL.IsAbs() {
		return nil, fmt.Errorf("page URL must be absolute")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	base := documentBase(doc, pageURL)
	seen := make(map[string]struct{})
	add := func(ref string) {
		if abs, ok := Normalize(base, ref); ok {
			seen[abs] = struct{}{}
		}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})

	if opts.RowKeys {
		doc.Find("tr[data-row-key]").Each(func(_ int, s *goquery.Selection) {
			key, _ := s.Attr("data-row-key")
			if looksLikeURL(key) {
				add(key)
			}
		})
	}

	if opts.OnClick {
		doc.Find("button[onclick]").Each(func(_ int, s *goquery.Selection) {
			handler, _ := s.Attr("onclick")
			for _, m := range onClickTarget.FindAllStringSubmatch(handler, -1) {
				add(m[1])
			}
		})
	}

	return sortedKeys(seen), nil
}

// Normalize resolves ref against base and reports whether the result is a
// checkable http(s) URL. Fragments are dropped, the host is lowercased and
// a default port is removed so equivalent spellings collapse to one link.
func Normalize(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if skipReference(ref) {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = canonicalHost(u.Scheme, u.Host)
	return u.String(), true
}

var defaultPorts = map[string]string{"http": "80", "https": "443"}

func canonicalHost(scheme, hostport string) string {
	u := url.URL{Host: hostport}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func skipReference(ref string) bool {
	lower := strings.ToLower(ref)
	if lower == "" || strings.HasPrefix(lower, "#") {
		return true
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "sms:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func looksLikeURL(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "http://") ||
		strings.HasPrefix(v, "https://") ||
		strings.HasPrefix(v, "/") ||
		strings.HasPrefix(v, "./") ||
		strings.HasPrefix(v, "../")
}

func documentBase(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	if b, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
		return b
	}
	return pageURL
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Page is a rendered page snapshot handed to the Collector.
type Page struct {
	URL    string
	Markup string
	// Hrefs are anchor targets already resolved by the browser.
	Hrefs []string
}

// Collector gathers links from page snapshots. It never fails: extraction
// problems are logged and yield an empty set.
type Collector struct {
	opts   ExtractOptions
	logger *zap.Logger
}

// NewCollector creates a Collector.
func NewCollector(opts ExtractOptions, logger *zap.Logger) *Collector {
	return &Collector{opts: opts, logger: logger.Named("collector")}
}

// Collect returns the links found on page.
func (c *Collector) Collect(page Page) []string {
	pageURL, err := url.Parse(page.URL)
	if err != nil || !pageURL.IsAbs() {
		c.logger.Error("Cannot collect links, page URL is not absolute", zap.String("page", page.URL), zap.Error(err))
		return []string{}
	}

	links, err := ExtractLinks(page.Markup, pageURL, c.opts)
	if err != nil {
		c.logger.Error("Error extracting links", zap.String("page", page.URL), zap.Error(err))
		return []string{}
	}

	if len(page.Hrefs) == 0 {
		return links
	}
	seen := make(map[string]struct{}, len(links)+len(page.Hrefs))
	for _, l := range links {
		seen[l] = struct{}{}
	}
	for _, h := range page.Hrefs {
		if abs, ok := Normalize(pageURL, h); ok {
			seen[abs] = struct{}{}
		}
	}
	out := sortedKeys(seen)
	c.logger.Debug("Collected links", zap.String("page", page.URL), zap.Int("count", len(out)))
	return out
}
