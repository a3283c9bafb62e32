package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/mylogger"
)

// Client queries an OSRM-compatible routing service for the driving
// distance between two points. Consumed best-effort only: callers must
// tolerate failure.
type Client struct {
	baseURL string
	client  *http.Client
	logger  mylogger.Logger
}

func NewClient(baseURL string, logger mylogger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ driven.RouteService = (*Client)(nil)

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (c *Client) GetRoute(ctx context.Context, origin, destination model.Coordinates) (driven.Route, error) {
	// OSRM takes lng,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return driven.Route{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return driven.Route{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return driven.Route{}, fmt.Errorf("route service returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return driven.Route{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return driven.Route{}, fmt.Errorf("unmarshaling route response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return driven.Route{}, fmt.Errorf("no route found (code %q)", parsed.Code)
	}

	return driven.Route{
		DistanceMeters: parsed.Routes[0].Distance,
		DurationSecs:   parsed.Routes[0].Duration,
	}, nil
}
