package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"sitekeeper/pkg/types"
)

// checkEndpoint is the fixed capability-check path of the extended plugin
const checkEndpoint = "/local/mobile/check.php"

// FormPoster is the transport slice the prober needs
type FormPoster interface {
	PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error)
}

// checkResponse is the capability-check endpoint's reply shape
type checkResponse struct {
	Code  int  `json:"code"`
	Error bool `json:"error"`
}

// Prober determines whether a site runs the extended-authentication plugin
// and what it requires.
// ARCHITECTURAL DISCOVERY: Probing is advisory, never blocking - every
// transport or format failure degrades to standard authentication instead
// of failing the caller
type Prober struct {
	poster  FormPoster
	cache   *Cache
	service string // candidate extended service name
}

// NewProber creates a capability prober sharing the session manager's cache
func NewProber(poster FormPoster, cache *Cache, service string) *Prober {
	return &Prober{poster: poster, cache: cache, service: service}
}

// Probe queries the capability-check endpoint for one site
func (p *Prober) Probe(ctx context.Context, siteURL string) (types.AuthCode, error) {
	endpoint := strings.TrimRight(siteURL, "/") + checkEndpoint
	form := url.Values{}
	form.Set("service", p.service)

	body, err := p.poster.PostForm(ctx, endpoint, form)
	if err != nil {
		// FUNCTIONAL DISCOVERY: Sites without the plugin 404 this endpoint;
		// that is the normal standard-auth case, not an error
		log.Printf("Capability probe unreachable, assuming standard auth: site=%s", siteURL)
		return types.AuthStandard, nil
	}

	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("Capability probe returned malformed response, assuming standard auth: site=%s", siteURL)
		return types.AuthStandard, nil
	}

	if resp.Error {
		switch resp.Code {
		case 1:
			return 0, fmt.Errorf("%w: site %s", ErrSiteMaintenance, siteURL)
		case 2:
			return 0, fmt.Errorf("%w: site %s", ErrServicesDisabled, siteURL)
		case 4:
			return 0, fmt.Errorf("%w: site %s", ErrMobileDisabled, siteURL)
		case 3:
			// Extended service disabled but standard login works - resolve to
			// standard rather than rejecting
			return types.AuthStandard, nil
		default:
			return types.AuthStandard, nil
		}
	}

	if resp.Code == 0 {
		// Side effect: remember the resolved service for this URL so later
		// token requests skip re-probing within this process
		p.cache.Set(siteURL, p.service)
		return types.AuthStandard, nil
	}

	if resp.Code < 0 || resp.Code > 4 {
		return types.AuthStandard, nil
	}
	return types.AuthCode(resp.Code), nil
}
