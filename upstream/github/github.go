// Package github integrates the GitHub REST issues API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

// Name is the registry name of the GitHub issues tool.
const Name = "github_issues"

// DefaultBaseURL is the production GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

const (
	defaultPerPage = 30
	maxPerPage     = 100
	maxBodyRunes   = 500
)

var validStates = map[string]struct{}{
	"open":   {},
	"closed": {},
	"all":    {},
}

// Client lists repository issues with a resolved configuration. The token is
// optional; public repositories work unauthenticated at a lower rate limit.
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

// ListIssuesArgs are the per-invocation inputs for an issue listing.
type ListIssuesArgs struct {
	Owner   string
	Repo    string
	State   string
	Labels  []string
	Page    int
	PerPage int
}

type repoResponse struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	OpenIssues  int    `json:"open_issues_count"`
	HTMLURL     string `json:"html_url"`
}

type issueEntry struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	State     string `json:"state"`
	Body      string `json:"body"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	// Present only when the entry is a pull request; the issues endpoint
	// returns both.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// ListIssues verifies the repository exists, then returns one page of issues.
// Pull requests are filtered out.
func (c *Client) ListIssues(ctx context.Context, args ListIssuesArgs) (map[string]any, error) {
	owner := strings.TrimSpace(args.Owner)
	repo := strings.TrimSpace(args.Repo)
	if owner == "" || repo == "" {
		return nil, tool.InvalidInputError("owner and repo are required")
	}
	state := args.State
	if state == "" {
		state = "open"
	}
	if _, ok := validStates[state]; !ok {
		return nil, tool.InvalidInputError("state %q is not one of open, closed, all", state)
	}

	repoInfo, err := c.fetchRepo(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	page := args.Page
	if page < 1 {
		page = 1
	}
	perPage := args.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	query := url.Values{}
	query.Set("state", state)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if len(args.Labels) > 0 {
		query.Set("labels", strings.Join(args.Labels, ","))
	}

	result, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, owner, repo),
		Query:  query,
		Header: c.apiHeader(),
	})
	if err != nil {
		return nil, refineRejection(err, owner, repo)
	}

	var entries []issueEntry
	if err := json.Unmarshal(result.Body, &entries); err != nil {
		return nil, tool.UpstreamContractError("decode issues response", err)
	}

	issues := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if entry.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(entry.Labels))
		for _, label := range entry.Labels {
			labels = append(labels, label.Name)
		}
		assignees := make([]string, 0, len(entry.Assignees))
		for _, assignee := range entry.Assignees {
			assignees = append(assignees, assignee.Login)
		}
		issues = append(issues, map[string]any{
			"number":     entry.Number,
			"title":      entry.Title,
			"state":      entry.State,
			"body":       truncateBody(entry.Body),
			"url":        entry.HTMLURL,
			"created_at": entry.CreatedAt,
			"updated_at": entry.UpdatedAt,
			"labels":     labels,
			"user":       entry.User.Login,
			"assignees":  assignees,
		})
	}

	return map[string]any{
		"repository":  repoInfo.FullName,
		"description": repoInfo.Description,
		"open_issues": repoInfo.OpenIssues,
		"url":         repoInfo.HTMLURL,
		"state":       state,
		"page":        page,
		"count":       len(issues),
		"issues":      issues,
	}, nil
}

func (c *Client) fetchRepo(ctx context.Context, owner, repo string) (repoResponse, error) {
	result, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo),
		Header: c.apiHeader(),
	})
	if err != nil {
		return repoResponse{}, refineRejection(err, owner, repo)
	}

	var decoded repoResponse
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		return repoResponse{}, tool.UpstreamContractError("decode repository response", err)
	}
	if decoded.FullName == "" {
		return repoResponse{}, tool.UpstreamContractError("repository response missing full_name", nil)
	}
	return decoded, nil
}

// Probe hits the rate-limit endpoint, which does not consume quota.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.caller.Do(ctx, tool.CallSpec{
		Tool:   Name,
		Method: http.MethodGet,
		URL:    c.baseURL + "/rate_limit",
		Header: c.apiHeader(),
	})
	return err
}

func (c *Client) apiHeader() http.Header {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}

// refineRejection rewrites generic status rejections into messages that name
// the repository, which is what the caller actually asked about.
func refineRejection(err error, owner, repo string) error {
	var adapterErr *tool.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Code != tool.CodeRejected {
		return err
	}
	switch adapterErr.Status {
	case http.StatusNotFound:
		return tool.RejectedError(fmt.Sprintf("repository %s/%s not found", owner, repo), adapterErr.Status)
	case http.StatusForbidden:
		return tool.RejectedError(fmt.Sprintf("access to %s/%s denied (private repository or rate limit)", owner, repo), adapterErr.Status)
	}
	return err
}

func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= maxBodyRunes {
		return body
	}
	return string(runes[:maxBodyRunes])
}
