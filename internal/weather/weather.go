// Package weather fetches the forecast payload for weather bumpers. The
// forecast is decorative: a fetch failure degrades the bumper rather than
// blocking the block it belongs to.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rerun/internal/services"
)

const userAgent = "rerun/0.1.0"

// Report is the forecast payload handed to the renderer.
type Report struct {
	Location    string
	Description string
	TempC       string
	FeelsLikeC  string
	FetchedAt   time.Time
}

// Text renders the report as the single line the renderer displays.
func (r Report) Text() string {
	parts := make([]string, 0, 3)
	if r.Location != "" {
		parts = append(parts, r.Location)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.TempC != "" {
		temp := r.TempC + "°C"
		if r.FeelsLikeC != "" && r.FeelsLikeC != r.TempC {
			temp += fmt.Sprintf(" (feels like %s°C)", r.FeelsLikeC)
		}
		parts = append(parts, temp)
	}
	return strings.Join(parts, " · ")
}

// Provider fetches forecasts.
type Provider interface {
	Current(ctx context.Context) (Report, error)
}

// HTTPProvider reads the wttr.in JSON format.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider builds a provider for the given endpoint. A non-positive
// timeout falls back to a short default; the fetch runs in the block
// generation path and must never hang it.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []struct {
			Value string `json:"value"`
		} `json:"areaName"`
	} `json:"nearest_area"`
}

// Current fetches and decodes the forecast.
func (p *HTTPProvider) Current(ctx context.Context) (Report, error) {
	if strings.TrimSpace(p.url) == "" {
		return Report{}, services.Wrap(services.ErrConfiguration, "weather", "fetch", "no weather endpoint configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Report{}, services.Wrap(services.ErrTransient, "weather", "fetch", "build weather request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Report{}, services.Wrap(services.ErrTransient, "weather", "fetch", "fetch forecast", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Report{}, services.Wrap(
			services.ErrTransient,
			"weather",
			"fetch",
			fmt.Sprintf("weather endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}

	var decoded wttrResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return Report{}, services.Wrap(services.ErrTransient, "weather", "fetch", "parse forecast response", err)
	}

	report := Report{FetchedAt: time.Now().UTC()}
	if len(decoded.CurrentCondition) > 0 {
		cond := decoded.CurrentCondition[0]
		report.TempC = strings.TrimSpace(cond.TempC)
		report.FeelsLikeC = strings.TrimSpace(cond.FeelsLikeC)
		if len(cond.WeatherDesc) > 0 {
			report.Description = strings.TrimSpace(cond.WeatherDesc[0].Value)
		}
	}
	if len(decoded.NearestArea) > 0 && len(decoded.NearestArea[0].AreaName) > 0 {
		report.Location = strings.TrimSpace(decoded.NearestArea[0].AreaName[0].Value)
	}
	return report, nil
}

var _ Provider = (*HTTPProvider)(nil)
