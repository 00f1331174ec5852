// Package slack integrates the Slack Web API chat.postMessage method.
package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

// Name is the registry name of the Slack tool.
const Name = "slack_post_message"

// DefaultBaseURL is the production Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// Client posts messages with a resolved configuration.
type Client struct {
	token   string
	baseURL string
	caller  *tool.Caller
}

// New builds a client from resolved tool configuration.
func New(cfg config.ToolConfig, caller *tool.Caller) *Client {
	baseURL := strings.TrimRight(cfg.Value("base_url"), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:   cfg.Value("token"),
		baseURL: baseURL,
		caller:  caller,
	}
}

// PostMessageArgs are the per-invocation inputs for one message.
type PostMessageArgs struct {
	Channel  string
	Text     string
	ThreadTS string
}

// The Web API reports failures inside a 200 envelope, so transport success
// still has to check ok.
type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

// PostMessage sends one message to a channel.
func (c *Client) PostMessage(ctx context.Context, args PostMessageArgs) (map[string]any, error) {
	channel := strings.TrimPrefix(strings.TrimSpace(args.Channel), "#")
	if channel == "" {
		return nil, tool.InvalidInputError("channel is empty")
	}
	text := strings.TrimSpace(args.Text)
	if text == "" {
		return nil, tool.InvalidInputError("text is empty")
	}

	form := url.Values{}
	form.Set("channel", channel)
	form.Set("text", text)
	if args.ThreadTS != "" {
		form.Set("thread_ts", args.ThreadTS)
	}

	result, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodPost,
		URL:    c.baseURL + "/chat.postMessage",
		Header: c.authHeader("application/x-www-form-urlencoded"),
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, err
	}

	var decoded postMessageResponse
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		return nil, tool.UpstreamContractError("decode chat.postMessage response", err)
	}
	if !decoded.OK {
		if decoded.Error == "" {
			return nil, tool.UpstreamContractError("chat.postMessage reported failure without an error token", nil)
		}
		return nil, tool.RejectedError("slack declined the message: "+decoded.Error, result.Status)
	}
	if decoded.TS == "" || decoded.Channel == "" {
		return nil, tool.UpstreamContractError("chat.postMessage response missing channel or ts", nil)
	}

	return map[string]any{
		"message_ts": decoded.TS,
		"status":     "sent",
		"channel":    decoded.Channel,
		"permalink":  permalink(decoded.Channel, decoded.TS),
	}, nil
}

// Probe calls auth.test, the canonical cheap credential check.
func (c *Client) Probe(ctx context.Context) error {
	result, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodPost,
		URL:    c.baseURL + "/auth.test",
		Header: c.authHeader(""),
	})
	if err != nil {
		return err
	}

	var decoded struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		return tool.UpstreamContractError("decode auth.test response", err)
	}
	if !decoded.OK {
		return tool.RejectedError("slack auth.test failed: "+decoded.Error, result.Status)
	}
	return nil
}

func (c *Client) authHeader(contentType string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return header
}

// permalink renders the archive URL form: the ts dot is dropped and the
// fractional part keeps its zero padding.
func permalink(channel, ts string) string {
	return "https://slack.com/archives/" + channel + "/p" + strings.ReplaceAll(ts, ".", "")
}
