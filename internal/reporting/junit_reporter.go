// File: internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
)

// JUnitReporter writes one JUnit test case per checked link so CI systems
// can show broken links as failed tests.
type JUnitReporter struct {
	writer io.WriteCloser
}

// NewJUnitReporter takes ownership of writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer}
}

func (r *JUnitReporter) Write(report *Report) error {
	summary := linkcheck.Summarize(report.Results)
	elapsed := seconds(report.Duration())

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "obi-linkcheck")
	suites.CreateAttr("tests", strconv.Itoa(summary.Total))
	suites.CreateAttr("failures", strconv.Itoa(summary.Issues()))
	suites.CreateAttr("time", elapsed)

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", "links."+report.Environment)
	suite.CreateAttr("tests", strconv.Itoa(summary.Total))
	suite.CreateAttr("failures", strconv.Itoa(summary.Issues()))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("skipped", "0")
	suite.CreateAttr("time", elapsed)
	if !report.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", report.StartedAt.UTC().Format(time.RFC3339))
	}

	props := suite.CreateElement("properties")
	for _, p := range [][2]string{
		{"run_id", report.RunID},
		{"environment", report.Environment},
		{"base_url", report.BaseURL},
		{"pages", strconv.Itoa(len(report.Pages))},
		{"working", strconv.Itoa(summary.Working)},
		{"forbidden", strconv.Itoa(summary.Forbidden)},
		{"broken", strconv.Itoa(summary.Broken)},
	} {
		prop := props.CreateElement("property")
		prop.CreateAttr("name", p[0])
		prop.CreateAttr("value", p[1])
	}

	for _, res := range report.Results {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", res.SourcePage)
		tc.CreateAttr("name", res.URL)
		tc.CreateAttr("time", "0")
		if !res.Class.IsIssue() {
			continue
		}
		failure := tc.CreateElement("failure")
		failure.CreateAttr("type", string(res.Class))
		failure.CreateAttr("message", fmt.Sprintf("Status %d", res.StatusCode))
		failure.SetText(failureText(res))
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	return r.writer.Close()
}

func failureText(res linkcheck.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s", res.SourcePage)
	if res.Context != "" {
		fmt.Fprintf(&b, "\nFound in: %s", res.Context)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", res.Error)
	}
	return b.String()
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
