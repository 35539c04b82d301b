package listing

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/model"
)

// Endpoint is a record kind's index page and its sort order.
type Endpoint struct {
	IndexURL  string
	Direction string
}

// Endpoints holds the public index pages for each record kind.
var Endpoints = map[model.RecordKind]Endpoint{
	model.KindBidNotice: {
		IndexURL:  BaseURL + "/Indexes/viewMoreOpenTenders",
		Direction: "Tenders.tender_start_datetime+desc",
	},
	model.KindAward: {
		IndexURL:  BaseURL + "/Indexes/viewMoreAward",
		Direction: "Awards.award_date+desc",
	},
}

// PageURL builds the URL of one listing page. Parameter order and encoding
// are fixed: page, direction, then each non-empty filter.
func (e Endpoint) PageURL(page int, f config.FiltersConfig) string {
	params := [][2]string{
		{"page", strconv.Itoa(page)},
		{"direction", e.Direction},
		{"searchPublishDateFrom", f.PublishDateFrom},
		{"searchPublishDateTo", f.PublishDateTo},
		{"searchClassification", f.Classification},
		{"searchBussinessCategory", f.BusinessCategory},
	}

	var b strings.Builder
	b.WriteString(e.IndexURL)
	sep := "?"
	for _, p := range params {
		if p[1] == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
		sep = "&"
	}
	return b.String()
}
