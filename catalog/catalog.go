// Package catalog is the closed set of tools this server can expose. Each
// tool is one entry in a compiled table: schema, config fields, and a builder
// that binds resolved configuration to an upstream client. Adding an
// integration means adding an entry here and flipping its enable flag; nothing
// is discovered at runtime.
package catalog

import (
	"context"
	"strconv"
	"time"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
	"github.com/petal-labs/pistil/upstream/github"
	"github.com/petal-labs/pistil/upstream/slack"
	"github.com/petal-labs/pistil/upstream/weather"
)

// callPolicy governs retries for every upstream call. Tools share the
// algorithm rather than carrying private copies, so a new integration only
// declares its call shape and error classification; per-tool config can tune
// the attempt count and timeout without touching the rest.
var callPolicy = tool.DefaultRetryPolicy()

// Definitions returns the tool table in declaration order. The order is
// stable and is what listings and capability advertisements use.
func Definitions() []tool.Definition {
	return []tool.Definition{
		weatherDefinition(),
		slackDefinition(),
		githubDefinition(),
	}
}

// policyFields are the retry knobs every tool declares alongside its own
// configuration.
func policyFields() []config.Field {
	return []config.Field{
		{Name: "timeout_seconds", Default: "10", Description: "Per-attempt HTTP timeout in seconds."},
		{Name: "max_attempts", Default: "3", Description: "Attempt ceiling for retryable failures."},
	}
}

// policyFor derives a tool's retry policy from the shared default plus its
// resolved timeout_seconds and max_attempts values.
func policyFor(cfg config.ToolConfig) (tool.RetryPolicy, error) {
	policy := callPolicy
	timeout, err := positiveIntField(cfg, "timeout_seconds")
	if err != nil {
		return tool.RetryPolicy{}, err
	}
	if timeout > 0 {
		policy.Timeout = time.Duration(timeout) * time.Second
	}
	attempts, err := positiveIntField(cfg, "max_attempts")
	if err != nil {
		return tool.RetryPolicy{}, err
	}
	if attempts > 0 {
		policy.MaxAttempts = attempts
	}
	return policy, nil
}

func positiveIntField(cfg config.ToolConfig, name string) (int, error) {
	raw := cfg.Value(name)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, &config.Error{Code: config.CodeInvalidValue, Tool: cfg.Tool, Field: name, Value: raw}
	}
	return parsed, nil
}

func weatherDefinition() tool.Definition {
	return tool.Definition{
		Name:        weather.Name,
		Description: "Current weather conditions for a location via OpenWeatherMap.",
		Inputs: map[string]tool.FieldSpec{
			"location": {
				Type:        tool.TypeString,
				Required:    true,
				Description: "City name, optionally with country code (\"Lisbon\" or \"Lisbon,PT\").",
			},
			"units": {
				Type:        tool.TypeString,
				Description: "Unit system: metric, imperial, or standard. Defaults to the configured system.",
			},
		},
		Outputs: map[string]tool.FieldSpec{
			"location":       {Type: tool.TypeString, Description: "Resolved place name with country code."},
			"temperature":    {Type: tool.TypeFloat, Description: "Current temperature in the requested units."},
			"feels_like":     {Type: tool.TypeFloat, Description: "Perceived temperature."},
			"description":    {Type: tool.TypeString, Description: "Short condition summary."},
			"humidity":       {Type: tool.TypeInteger, Description: "Relative humidity percentage."},
			"pressure":       {Type: tool.TypeInteger, Description: "Atmospheric pressure in hPa."},
			"wind_speed":     {Type: tool.TypeFloat, Description: "Wind speed."},
			"wind_direction": {Type: tool.TypeInteger, Description: "Wind direction in degrees."},
			"visibility":     {Type: tool.TypeInteger, Description: "Visibility in meters."},
			"clouds":         {Type: tool.TypeInteger, Description: "Cloud cover percentage."},
			"units":          {Type: tool.TypeString, Description: "Unit system the values are expressed in."},
		},
		Config: append([]config.Field{
			{Name: "api_key", Required: true, Sensitive: true, Description: "OpenWeatherMap API key."},
			{Name: "base_url", Default: weather.DefaultBaseURL, Description: "API origin, overridable for testing."},
			{Name: "units", Default: "metric", Description: "Default unit system for lookups."},
		}, policyFields()...),
		Build: func(cfg config.ToolConfig) (tool.Runtime, error) {
			policy, err := policyFor(cfg)
			if err != nil {
				return tool.Runtime{}, err
			}
			client := weather.New(cfg, tool.NewCaller(policy))
			return tool.Runtime{
				Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return client.Current(ctx, weather.CurrentArgs{
						Location: stringArg(args, "location"),
						Units:    stringArg(args, "units"),
					})
				},
				Probe: client.Probe,
			}, nil
		},
	}
}

func slackDefinition() tool.Definition {
	return tool.Definition{
		Name:        slack.Name,
		Description: "Post a message to a Slack channel as the configured bot.",
		Inputs: map[string]tool.FieldSpec{
			"channel": {
				Type:        tool.TypeString,
				Required:    true,
				Description: "Channel name or ID; a leading # is accepted and stripped.",
			},
			"text": {
				Type:        tool.TypeString,
				Required:    true,
				Description: "Message text.",
			},
			"thread_ts": {
				Type:        tool.TypeString,
				Description: "Timestamp of a parent message to reply in thread.",
			},
		},
		Outputs: map[string]tool.FieldSpec{
			"message_ts": {Type: tool.TypeString, Description: "Message timestamp assigned by Slack."},
			"status":     {Type: tool.TypeString, Description: "Delivery status, \"sent\" on success."},
			"channel":    {Type: tool.TypeString, Description: "Channel ID the message landed in."},
			"permalink":  {Type: tool.TypeString, Description: "Archive link to the posted message."},
		},
		Config: append([]config.Field{
			{Name: "token", Required: true, Sensitive: true, Description: "Bot user OAuth token (xoxb-...)."},
			{Name: "base_url", Default: slack.DefaultBaseURL, Description: "API origin, overridable for testing."},
		}, policyFields()...),
		Build: func(cfg config.ToolConfig) (tool.Runtime, error) {
			policy, err := policyFor(cfg)
			if err != nil {
				return tool.Runtime{}, err
			}
			client := slack.New(cfg, tool.NewCaller(policy))
			return tool.Runtime{
				Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return client.PostMessage(ctx, slack.PostMessageArgs{
						Channel:  stringArg(args, "channel"),
						Text:     stringArg(args, "text"),
						ThreadTS: stringArg(args, "thread_ts"),
					})
				},
				Probe: client.Probe,
			}, nil
		},
	}
}

func githubDefinition() tool.Definition {
	return tool.Definition{
		Name:        github.Name,
		Description: "List open or closed issues for a GitHub repository, excluding pull requests.",
		Inputs: map[string]tool.FieldSpec{
			"owner": {
				Type:        tool.TypeString,
				Required:    true,
				Description: "Repository owner (user or organization).",
			},
			"repo": {
				Type:        tool.TypeString,
				Required:    true,
				Description: "Repository name.",
			},
			"state": {
				Type:        tool.TypeString,
				Default:     "open",
				Description: "Issue state filter: open, closed, or all.",
			},
			"labels": {
				Type:        tool.TypeArray,
				Items:       &tool.FieldSpec{Type: tool.TypeString},
				Description: "Label names; issues must carry all of them.",
			},
			"page": {
				Type:        tool.TypeInteger,
				Description: "Result page, starting at 1.",
			},
			"per_page": {
				Type:        tool.TypeInteger,
				Description: "Results per page, at most 100.",
			},
		},
		Outputs: map[string]tool.FieldSpec{
			"repository":  {Type: tool.TypeString, Description: "Full owner/name of the repository."},
			"description": {Type: tool.TypeString, Description: "Repository description."},
			"open_issues": {Type: tool.TypeInteger, Description: "Open issue count reported by GitHub."},
			"url":         {Type: tool.TypeString, Description: "Repository page URL."},
			"state":       {Type: tool.TypeString, Description: "State filter the listing used."},
			"page":        {Type: tool.TypeInteger, Description: "Page the listing covers."},
			"count":       {Type: tool.TypeInteger, Description: "Number of issues returned after filtering."},
			"issues": {
				Type:        tool.TypeArray,
				Items:       &tool.FieldSpec{Type: tool.TypeObject},
				Description: "Issues on this page; pull requests are filtered out.",
			},
		},
		Config: append([]config.Field{
			{Name: "token", Sensitive: true, Description: "Optional personal access token; raises rate limits and reaches private repositories."},
			{Name: "base_url", Default: github.DefaultBaseURL, Description: "API origin, overridable for GitHub Enterprise or testing."},
		}, policyFields()...),
		Build: func(cfg config.ToolConfig) (tool.Runtime, error) {
			policy, err := policyFor(cfg)
			if err != nil {
				return tool.Runtime{}, err
			}
			client := github.New(cfg, tool.NewCaller(policy))
			return tool.Runtime{
				Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
					return client.ListIssues(ctx, github.ListIssuesArgs{
						Owner:   stringArg(args, "owner"),
						Repo:    stringArg(args, "repo"),
						State:   stringArg(args, "state"),
						Labels:  stringSliceArg(args, "labels"),
						Page:    intArg(args, "page"),
						PerPage: intArg(args, "per_page"),
					})
				},
				Probe: client.Probe,
			}, nil
		},
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	v, _ := args[key].(int64)
	return int(v)
}

// stringSliceArg unpacks a validated string-array argument. Validation has
// already coerced every element, so non-strings are impossible here.
func stringSliceArg(args map[string]any, key string) []string {
	items, _ := args[key].([]any)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
