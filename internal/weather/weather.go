// Package weather looks up current conditions from OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	neturl "net/url"
	"time"

	applog "famcal/internal/log"
	"famcal/internal/model"
)

const apiURL = "https://api.openweathermap.org/data/2.5/weather"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches weather reports for the dashboard header.
type Client struct {
	client HTTPClient
}

// NewClient creates a Client with a default 10-second HTTP client.
func NewClient() *Client {
	return &Client{client: &http.Client{Timeout: 10 * time.Second}}
}

// NewClientWithHTTP creates a Client with the given HTTP client.
func NewClientWithHTTP(client HTTPClient) *Client {
	return &Client{client: client}
}

// openWeatherResponse is the subset of the OpenWeatherMap payload we read.
type openWeatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
		Icon string `json:"icon"`
	} `json:"weather"`
}

// Fetch returns the current conditions for location. unit is "F" or "C"
// and selects imperial vs metric. Without an API key a canned placeholder
// is returned so the dashboard still renders something sensible.
func (c *Client) Fetch(ctx context.Context, location, unit, apiKey string) (model.WeatherReport, error) {
	if unit != "C" {
		unit = "F"
	}

	if apiKey == "" {
		applog.Info("weather: no API key configured; returning placeholder", "location", location)
		return model.WeatherReport{
			Temperature: 72,
			Condition:   "Sunny",
			Icon:        "01d",
			Location:    location,
			Unit:        unit,
		}, nil
	}

	units := "imperial"
	if unit == "C" {
		units = "metric"
	}

	q := neturl.Values{}
	q.Set("q", location)
	q.Set("appid", apiKey)
	q.Set("units", units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.WeatherReport{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.WeatherReport{}, fmt.Errorf("weather request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.WeatherReport{}, fmt.Errorf("weather request: unexpected status %d", resp.StatusCode)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.WeatherReport{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(payload.Weather) == 0 {
		return model.WeatherReport{}, fmt.Errorf("weather response contains no conditions")
	}

	return model.WeatherReport{
		Temperature: int(math.Round(payload.Main.Temp)),
		Condition:   payload.Weather[0].Main,
		Icon:        payload.Weather[0].Icon,
		Location:    payload.Name,
		Unit:        unit,
	}, nil
}
