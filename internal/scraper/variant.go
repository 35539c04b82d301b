// Package scraper runs one scrape session against the portal: listing crawl,
// dedup, fan-out to tab-owning workers and the closing session log.
package scraper

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/philgeps-cli/internal/browser"
	"github.com/sells-group/philgeps-cli/internal/listing"
	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/parser"
)

// ErrAuthRequired is returned when a variant needs a login but no
// Authenticator was supplied.
var ErrAuthRequired = eris.New("scraper: variant requires authentication")

// Variant is everything that differs between the bid notice and awarded
// contract sessions.
type Variant struct {
	Kind     model.RecordKind
	Endpoint listing.Endpoint
	Mapping  listing.Mapping
	Parse    func(html string) model.Record

	// RequiresAuth routes the session through the Authenticating state.
	RequiresAuth bool
	// Documents enables the document modal on detail pages.
	Documents bool
}

// VariantFor returns the public-data variant for kind.
func VariantFor(kind model.RecordKind) (Variant, error) {
	m, err := listing.MappingFor(kind)
	if err != nil {
		return Variant{}, eris.Wrap(err, "scraper: variant")
	}
	ep, ok := listing.Endpoints[kind]
	if !ok {
		return Variant{}, eris.Errorf("scraper: no listing endpoint for %s", kind)
	}
	return Variant{
		Kind:      kind,
		Endpoint:  ep,
		Mapping:   m,
		Parse:     func(html string) model.Record { return parser.Parse(html, kind) },
		Documents: kind == model.KindBidNotice,
	}, nil
}

// Authenticator signs a page into the portal's member area. The session
// reuses that page as worker 0's tab, so its cookies carry over.
type Authenticator interface {
	Login(ctx context.Context, page browser.Page) error
}
