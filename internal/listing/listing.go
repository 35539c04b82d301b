// Package listing reads the portal's paginated index pages: the record rows,
// the "Page n of N" caption and the URL of each page.
package listing

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// BaseURL is the portal origin relative links are resolved against.
const BaseURL = "https://philgeps.gov.ph"

const rowSelector = "tbody tr"

var pageCaptionRe = regexp.MustCompile(`Page\s+\d+\s+of\s+(\d+)`)

// NewDocument parses listing HTML.
func NewDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse html")
	}
	return doc, nil
}

// Extract returns one summary per table row, in page order. A row without the
// key anchor (or with an empty key) is skipped; any other missing cell leaves
// that field empty. Title is nil when its cell is absent.
func Extract(doc *goquery.Document, m Mapping) []model.RecordSummary {
	var out []model.RecordSummary
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		layout, ok := layoutFor(row, m.Layouts)
		if !ok {
			return
		}
		anchor := row.Find(layout.Key).First()
		if anchor.Length() == 0 {
			return
		}
		key := cleanText(anchor.Text())
		if key == "" {
			return
		}

		s := model.RecordSummary{
			Key:  key,
			URL:  detailURL(anchor.AttrOr("href", ""), key, m),
			Kind: m.Kind,
		}
		for field, sel := range layout.Fields {
			cell := row.Find(sel).First()
			if cell.Length() == 0 {
				continue
			}
			text := cleanText(cell.Text())
			if field == TitleField {
				s.Title = &text
				continue
			}
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			s.Extra[field] = text
		}
		out = append(out, s)
	})
	return out
}

// layoutFor picks the first layout whose When selector matches inside row.
func layoutFor(row *goquery.Selection, layouts []Layout) (Layout, bool) {
	for _, l := range layouts {
		if l.When == "" || row.Find(l.When).Length() > 0 {
			return l, true
		}
	}
	return Layout{}, false
}

// detailURL resolves a row's href: root-relative links get the portal
// origin, absolute links are kept, anything else falls back to the kind's
// URL template.
func detailURL(href, key string, m Mapping) string {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "/"):
		return BaseURL + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return m.DetailURLFor(key)
	}
}

// TotalPages reads the "Page n of N" caption. ok is false when the caption
// is missing or unparseable.
func TotalPages(doc *goquery.Document) (int, bool) {
	caption := doc.Find("div.paginator p").First()
	if caption.Length() == 0 {
		return 0, false
	}
	m := pageCaptionRe.FindStringSubmatch(cleanText(caption.Text()))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
