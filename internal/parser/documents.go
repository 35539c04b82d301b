package parser

import (
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/philgeps-cli/internal/model"
)

// portalOrigin is prepended to relative document links.
const portalOrigin = "https://philgeps.gov.ph"

var (
	pdfSuffixRe     = regexp.MustCompile(`(?i)\.pdf$`)
	portalDocsRe    = regexp.MustCompile(`(?i)portal_documents.*\.pdf`)
	fileSizeRe      = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?\s*[KMG]B)\b`)
	documentMatches = []func(href string) bool{
		pdfSuffixRe.MatchString,
		portalDocsRe.MatchString,
		func(href string) bool { return strings.Contains(strings.ToLower(href), ".pdf") },
	}
)

// documentTypes maps filename keywords to a document category, checked in
// order. The first entry with any matching keyword wins.
var documentTypes = []struct {
	keywords []string
	label    string
}{
	{[]string{"bid_notice", "notice"}, "Bid Notice"},
	{[]string{"technical", "specs"}, "Technical Specifications"},
	{[]string{"terms", "tor"}, "Terms of Reference"},
	{[]string{"bill", "boq"}, "Bill of Quantities"},
	{[]string{"drawing", "plan"}, "Drawings/Plans"},
	{[]string{"supplement", "amendment"}, "Supplement/Amendment"},
}

// DefaultDocumentType is used when no keyword matches.
const DefaultDocumentType = "Document"

// DocumentType infers a coarse category from a filename.
func DocumentType(filename string) string {
	lower := strings.ToLower(filename)
	for _, dt := range documentTypes {
		for _, k := range dt.keywords {
			if strings.Contains(lower, k) {
				return dt.label
			}
		}
	}
	return DefaultDocumentType
}

// ParseDocuments extracts PDF links from a detail page or the document modal.
func ParseDocuments(raw string) []model.Document {
	return newPage(raw).documents()
}

// documents tries each link strategy in order of specificity and keeps the
// first that finds anything. Duplicate URLs are dropped.
func (p *page) documents() []model.Document {
	links := p.doc.Find("a[href]")

	var matched []*goquery.Selection
	for i, match := range documentMatches {
		links.Each(func(_ int, a *goquery.Selection) {
			if match(strings.TrimSpace(a.AttrOr("href", ""))) {
				matched = append(matched, a)
			}
		})
		if len(matched) > 0 {
			zap.L().Debug("parser: document links found", zap.Int("strategy", i+1), zap.Int("links", len(matched)))
			break
		}
	}

	var docs []model.Document
	seen := make(map[string]bool)
	for _, a := range matched {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			continue
		}
		u := absoluteURL(href)
		if seen[u] {
			continue
		}
		seen[u] = true

		name := cleanText(a.Text())
		if name == "" {
			name = path.Base(strings.SplitN(href, "?", 2)[0])
		}
		docs = append(docs, model.Document{
			Position:     len(docs),
			Filename:     name,
			DocumentURL:  u,
			DocumentType: DocumentType(name),
			FileSize:     fileSize(a),
		})
	}
	return docs
}

// fileSize reads a "(1.2 MB)" hint printed right after the link or elsewhere
// in its table row.
func fileSize(a *goquery.Selection) *string {
	var hints []string
	if n := a.Nodes[0].NextSibling; n != nil && n.Type == html.TextNode {
		hints = append(hints, n.Data)
	}
	if row := a.Closest("tr, li"); row.Length() > 0 {
		hints = append(hints, row.Text())
	}
	for _, h := range hints {
		if m := fileSizeRe.FindStringSubmatch(h); m != nil {
			s := strings.ToUpper(cleanText(m[1]))
			return &s
		}
	}
	return nil
}

func absoluteURL(href string) string {
	switch {
	case strings.HasPrefix(href, "/"):
		return portalOrigin + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return portalOrigin + "/" + href
	}
}
