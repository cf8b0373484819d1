// routing/routing.go
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"friendsnav/models"
)

var (
	// ErrUnavailable is returned when the provider could not be reached or answered with an error.
	ErrUnavailable = errors.New("routing provider unavailable")
	// ErrNoRoute is returned when the provider found no route between the two points.
	ErrNoRoute = errors.New("no route found")
)

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) String() string {
	return fmt.Sprintf("%f,%f", p.Lng, p.Lat)
}

// Provider computes a single leg.
type Provider interface {
	Route(ctx context.Context, from, to Point) (*models.Route, error)
}

type geometry struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type apiRoute struct {
	Duration float64  `json:"duration"`
	Distance float64  `json:"distance"`
	Geometry geometry `json:"geometry"`
}

type apiResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Routes  []apiRoute `json:"routes"`
}

func (r apiRoute) toModel() *models.Route {
	return &models.Route{
		Duration: r.Duration,
		Distance: r.Distance,
		Geometry: r.Geometry.Coordinates,
	}
}

func fetch(ctx context.Context, client *http.Client, url string) (int, *apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.StatusCode, &parsed, nil
}
