// routing/osrm.go
package routing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"friendsnav/models"
)

const DefaultOSRMURL = "https://router.project-osrm.org"

// OSRM calls an OSRM route service. It needs no access token.
type OSRM struct {
	baseURL string
	profile string
	client  *http.Client
}

func NewOSRM(baseURL, profile string, timeout time.Duration) *OSRM {
	if baseURL == "" {
		baseURL = DefaultOSRMURL
	}
	if profile == "" {
		profile = "driving"
	}
	return &OSRM{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OSRM) Route(ctx context.Context, from, to Point) (*models.Route, error) {
	u := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=full&geometries=geojson", o.baseURL, o.profile, from, to)

	status, resp, err := fetch(ctx, o.client, u)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Code == "NoRoute":
		return nil, ErrNoRoute
	case status != http.StatusOK || resp.Code != "Ok":
		return nil, fmt.Errorf("%w: osrm status %d code %q: %s", ErrUnavailable, status, resp.Code, resp.Message)
	case len(resp.Routes) == 0:
		return nil, ErrNoRoute
	}
	return resp.Routes[0].toModel(), nil
}
