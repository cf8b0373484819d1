// routing/mapbox.go
package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"friendsnav/models"
)

const DefaultMapboxURL = "https://api.mapbox.com"

// Mapbox calls the Mapbox Directions API.
type Mapbox struct {
	baseURL string
	token   string
	profile string
	client  *http.Client
}

func NewMapbox(baseURL, token, profile string, timeout time.Duration) *Mapbox {
	if baseURL == "" {
		baseURL = DefaultMapboxURL
	}
	if profile == "" {
		profile = "driving"
	}
	return &Mapbox{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		profile: profile,
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *Mapbox) Route(ctx context.Context, from, to Point) (*models.Route, error) {
	q := url.Values{}
	q.Set("geometries", "geojson")
	q.Set("overview", "full")
	q.Set("access_token", m.token)
	u := fmt.Sprintf("%s/directions/v5/mapbox/%s/%s;%s?%s", m.baseURL, m.profile, from, to, q.Encode())

	status, resp, err := fetch(ctx, m.client, u)
	if err != nil {
		return nil, err
	}
	if resp.Code == "NoRoute" || resp.Code == "NoSegment" {
		return nil, ErrNoRoute
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: mapbox status %d: %s", ErrUnavailable, status, resp.Message)
	}
	if len(resp.Routes) == 0 {
		return nil, ErrNoRoute
	}
	return resp.Routes[0].toModel(), nil
}
