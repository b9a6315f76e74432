package linkcheck

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxContextText = 100

// contextTags are tried in order when no table row encloses the anchor.
var contextTags = []string{"tr", "li", "div", "section", "article", "td", "ul", "ol"}

// PageContext indexes the anchors of one page by the link they resolve to,
// so the markup is parsed once however many links the page holds.
type PageContext struct {
	anchors map[string]*goquery.Selection
}

// NewPageContext parses markup and records the first anchor for every
// checkable link. A nil pageURL or unparsable markup yields an empty index.
func NewPageContext(markup string, pageURL *url.URL) *PageContext {
	pc := &PageContext{anchors: make(map[string]*goquery.Selection)}
	if pageURL == nil {
		return pc
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return pc
	}
	base := documentBase(doc, pageURL)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := Normalize(base, href)
		if !ok {
			return
		}
		if _, dup := pc.anchors[abs]; !dup {
			pc.anchors[abs] = s
		}
	})
	return pc
}

// Describe reports where on the page the anchor pointing at target sits,
// e.g. "<tr class='ant-table-row'> - Morphology 42". It returns "" when no
// anchor resolves to target.
func (pc *PageContext) Describe(target string) string {
	if pc == nil {
		return ""
	}
	anchor, ok := pc.anchors[target]
	if !ok {
		return ""
	}

	if row := anchor.ParentsFiltered("[class*='ant-table-row']").First(); row.Length() > 0 {
		return describe(row)
	}
	for _, tag := range contextTags {
		if parent := anchor.ParentsFiltered(tag).First(); parent.Length() > 0 {
			return describe(parent)
		}
	}
	return describe(anchor)
}

// ElementContext is Describe for a single lookup.
func ElementContext(markup string, pageURL *url.URL, target string) string {
	return NewPageContext(markup, pageURL).Describe(target)
}

func describe(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	class := strings.Join(strings.Fields(s.AttrOr("class", "")), " ")
	text := strings.Join(strings.Fields(s.Text()), " ")
	if r := []rune(text); len(r) > maxContextText {
		text = string(r[:maxContextText]) + "..."
	}
	if class == "" {
		return fmt.Sprintf("<%s> - %s", tag, text)
	}
	return fmt.Sprintf("<%s class='%s'> - %s", tag, class, text)
}
