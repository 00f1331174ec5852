// Package weather integrates the OpenWeatherMap current-conditions API.
package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

// Name is the registry name of the weather tool.
const Name = "weather"

// DefaultBaseURL is the production OpenWeatherMap endpoint.
const DefaultBaseURL = "https://api.openweathermap.org"

var validUnits = map[string]struct{}{
	"standard": {},
	"metric":   {},
	"imperial": {},
}

// Client calls the current-weather endpoint with a resolved configuration.
type Client struct {
	apiKey  string
	baseURL string
	units   string
	caller  *tool.Caller
}

// New builds a client from resolved tool configuration.
func New(cfg config.ToolConfig, caller *tool.Caller) *Client {
	baseURL := strings.TrimRight(cfg.Value("base_url"), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	units := cfg.Value("units")
	if units == "" {
		units = "metric"
	}
	return &Client{
		apiKey:  cfg.Value("api_key"),
		baseURL: baseURL,
		units:   units,
		caller:  caller,
	}
}

// CurrentArgs are the per-invocation inputs for a conditions lookup.
type CurrentArgs struct {
	Location string
	Units    string
}

type currentResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
	Clouds     struct {
		All int `json:"all"`
	} `json:"clouds"`
}

// Current fetches current conditions for a location.
func (c *Client) Current(ctx context.Context, args CurrentArgs) (map[string]any, error) {
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return nil, tool.InvalidInputError("location is empty")
	}
	units := args.Units
	if units == "" {
		units = c.units
	}
	if _, ok := validUnits[units]; !ok {
		return nil, tool.InvalidInputError("units %q is not one of standard, metric, imperial", units)
	}

	query := url.Values{}
	query.Set("q", location)
	query.Set("units", units)
	query.Set("appid", c.apiKey)

	result, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodGet,
		URL:    c.baseURL + "/data/2.5/weather",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var decoded currentResponse
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		return nil, tool.UpstreamContractError("decode current weather response", err)
	}
	if len(decoded.Weather) == 0 {
		return nil, tool.UpstreamContractError("weather conditions missing from response", nil)
	}

	resolved := decoded.Name
	if decoded.Sys.Country != "" {
		resolved = decoded.Name + ", " + decoded.Sys.Country
	}

	return map[string]any{
		"location":       resolved,
		"temperature":    decoded.Main.Temp,
		"feels_like":     decoded.Main.FeelsLike,
		"description":    decoded.Weather[0].Description,
		"humidity":       decoded.Main.Humidity,
		"pressure":       decoded.Main.Pressure,
		"wind_speed":     decoded.Wind.Speed,
		"wind_direction": decoded.Wind.Deg,
		"visibility":     decoded.Visibility,
		"clouds":         decoded.Clouds.All,
		"units":          units,
	}, nil
}

// Probe checks upstream reachability and credential validity with a minimal
// lookup.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Current(ctx, CurrentArgs{Location: "London"})
	return err
}
