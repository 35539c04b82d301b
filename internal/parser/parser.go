// Package parser turns portal detail pages into typed records. Parsing never
// fails: a field whose label is missing stays nil, so a legacy page yields a
// sparse record rather than an error. Rejecting records without a natural key
// is left to the caller.
package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/philgeps-cli/internal/model"
)

var (
	emailRe         = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	downloadCountRe = regexp.MustCompile(`(?i)Downloaded:\s*(\d+)`)
)

// page is a parsed document plus its <label> elements in document order.
type page struct {
	doc    *goquery.Document
	labels []labelNode
}

type labelNode struct {
	node *html.Node
	text string
}

func newPage(raw string) *page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		zap.L().Warn("parser: unreadable html", zap.Error(err))
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	p := &page{doc: doc}
	doc.Find("label").Each(func(_ int, s *goquery.Selection) {
		p.labels = append(p.labels, labelNode{node: s.Nodes[0], text: cleanText(s.Text())})
	})
	return p
}

// label returns the first <label> whose text matches re.
func (p *page) label(re *regexp.Regexp) *html.Node {
	for _, l := range p.labels {
		if re.MatchString(l.text) {
			return l.node
		}
	}
	return nil
}

// Parse parses a detail page of the given kind. It returns nil only for an
// unknown kind.
func Parse(raw string, kind model.RecordKind) model.Record {
	switch kind {
	case model.KindBidNotice:
		return ParseBidNotice(raw)
	case model.KindAward:
		return ParseAward(raw)
	default:
		return nil
	}
}

// ParseBidNotice parses an open bid notice page.
func ParseBidNotice(raw string) *model.BidNotice {
	p := newPage(raw)
	b := &model.BidNotice{Status: model.DefaultBidStatus}
	applyFields(p, b, bidFields)

	b.Title = p.title()
	b.Description = p.description()
	b.ContactEmail = p.email()
	b.DownloadCount = p.downloadCount()
	b.LineItems = p.lineItems()
	b.Documents = p.documents()

	zap.L().Debug("parser: parsed bid notice",
		zap.String("reference_number", b.ReferenceNumber),
		zap.Int("line_items", len(b.LineItems)),
		zap.Int("documents", len(b.Documents)),
	)
	return b
}

// ParseAward parses an award notice page.
func ParseAward(raw string) *model.AwardedContract {
	p := newPage(raw)
	a := &model.AwardedContract{}
	applyFields(p, a, awardFields)

	if a.AwardTitle == nil {
		a.AwardTitle = p.title()
	}
	a.Description = p.description()
	a.LineItems = p.lineItems()
	a.Documents = p.documents()

	zap.L().Debug("parser: parsed award",
		zap.String("award_notice_number", a.AwardNoticeNumber),
		zap.Int("line_items", len(a.LineItems)),
		zap.Int("documents", len(a.Documents)),
	)
	return a
}

// title reads the bold heading the portal centres above the details table.
func (p *page) title() *string {
	b := p.doc.Find("center.verdhana_fourteenpx b").First()
	if b.Length() == 0 {
		return nil
	}
	return nonEmpty(b.Text())
}

// description reads the wrapped text block in the first cell mentioning
// "Description:".
func (p *page) description() *string {
	cell := p.doc.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Description:")
	}).First()
	if cell.Length() == 0 {
		return nil
	}
	div := cell.Find("div.wrapped-long-string1").First()
	if div.Length() == 0 {
		return nil
	}
	return nonEmpty(div.Text())
}

// email returns the first address-shaped string anywhere on the page.
func (p *page) email() *string {
	m := emailRe.FindString(p.doc.Text())
	if m == "" {
		return nil
	}
	return &m
}

// downloadCount reads "Downloaded: N"; pages without it count zero downloads.
func (p *page) downloadCount() *int {
	n := 0
	if m := downloadCountRe.FindStringSubmatch(p.doc.Text()); m != nil {
		if v := LeadingInt(m[1]); v != nil {
			n = *v
		}
	}
	return &n
}

func nonEmpty(s string) *string {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	return &s
}
