package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

func TestDefinitionsTable(t *testing.T) {
	defs := Definitions()
	wantOrder := []string{"weather", "slack_post_message", "github_issues"}
	if len(defs) != len(wantOrder) {
		t.Fatalf("len(Definitions()) = %d, want %d", len(defs), len(wantOrder))
	}
	seen := map[string]bool{}
	for i, def := range defs {
		if def.Name != wantOrder[i] {
			t.Errorf("Definitions()[%d].Name = %q, want %q", i, def.Name, wantOrder[i])
		}
		if seen[def.Name] {
			t.Errorf("duplicate definition %q", def.Name)
		}
		seen[def.Name] = true
		if def.Description == "" {
			t.Errorf("%s: empty description", def.Name)
		}
		if len(def.Inputs) == 0 {
			t.Errorf("%s: no input schema", def.Name)
		}
		if len(def.Outputs) == 0 {
			t.Errorf("%s: no output schema", def.Name)
		}
		if def.Build == nil {
			t.Errorf("%s: nil builder", def.Name)
		}
		for i, field := range def.Config {
			if field.Name == "" {
				t.Errorf("%s: config field %d has no name", def.Name, i)
			}
			if field.Description == "" {
				t.Errorf("%s: config field %q has no description", def.Name, field.Name)
			}
		}
	}
}

func TestBuildersProduceRuntimes(t *testing.T) {
	secrets := map[string]map[string]string{
		"weather":            {"api_key": "k"},
		"slack_post_message": {"token": "t"},
		"github_issues":      nil,
	}
	for _, def := range Definitions() {
		runtime, err := def.Build(config.ToolConfig{
			Tool:    def.Name,
			Enabled: true,
			Secrets: secrets[def.Name],
		})
		if err != nil {
			t.Fatalf("%s: Build() error = %v", def.Name, err)
		}
		if runtime.Invoke == nil {
			t.Errorf("%s: runtime has no invoker", def.Name)
		}
		if runtime.Probe == nil {
			t.Errorf("%s: runtime has no probe", def.Name)
		}
	}
}

func TestWeatherRuntimeBindsArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Porto" || q.Get("units") != "imperial" {
			t.Errorf("query = %v, want location and units bound from arguments", q)
		}
		_, _ = w.Write([]byte(`{"name":"Porto","main":{"temp":70.1,"feels_like":69.5,"humidity":55},"weather":[{"description":"clear sky"}],"wind":{"speed":3.0}}`))
	}))
	defer srv.Close()

	runtime, err := weatherDefinition().Build(config.ToolConfig{
		Tool:    "weather",
		Enabled: true,
		Secrets: map[string]string{"api_key": "k"},
		Params:  map[string]string{"base_url": srv.URL},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	out, err := runtime.Invoke(context.Background(), map[string]any{"location": "Porto", "units": "imperial"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out["location"] != "Porto" {
		t.Errorf("location = %v, want Porto", out["location"])
	}
}

func TestGitHubRuntimeBindsIntegerArguments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/rocket", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"full_name":"acme/rocket","open_issues_count":0,"html_url":"u"}`))
	})
	mux.HandleFunc("/repos/acme/rocket/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("per_page") != "5" {
			t.Errorf("pagination = %v, want page=2 per_page=5", q)
		}
		if q.Get("labels") != "bug,p1" {
			t.Errorf("labels = %q, want bug,p1", q.Get("labels"))
		}
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runtime, err := githubDefinition().Build(config.ToolConfig{
		Tool:    "github_issues",
		Enabled: true,
		Params:  map[string]string{"base_url": srv.URL},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// Integer and array arguments arrive as int64 and []any after schema
	// coercion.
	out, err := runtime.Invoke(context.Background(), map[string]any{
		"owner": "acme", "repo": "rocket", "page": int64(2), "per_page": int64(5),
		"labels": []any{"bug", "p1"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out["page"] != 2 {
		t.Errorf("page = %v, want 2", out["page"])
	}
}

func TestPolicyForAppliesConfiguredKnobs(t *testing.T) {
	policy, err := policyFor(config.ToolConfig{
		Tool:    "weather",
		Enabled: true,
		Params:  map[string]string{"timeout_seconds": "3", "max_attempts": "5"},
	})
	if err != nil {
		t.Fatalf("policyFor() error = %v", err)
	}
	if policy.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", policy.Timeout)
	}
	if policy.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", policy.MaxAttempts)
	}

	fallback, err := policyFor(config.ToolConfig{Tool: "weather", Enabled: true})
	if err != nil {
		t.Fatalf("policyFor() error = %v", err)
	}
	if fallback.Timeout != callPolicy.Timeout || fallback.MaxAttempts != callPolicy.MaxAttempts {
		t.Errorf("policy without knobs = %+v, want the shared default", fallback)
	}
}

func TestBuildRejectsBadPolicyValues(t *testing.T) {
	for _, params := range []map[string]string{
		{"max_attempts": "many"},
		{"max_attempts": "0"},
		{"timeout_seconds": "-2"},
	} {
		_, err := weatherDefinition().Build(config.ToolConfig{
			Tool:    "weather",
			Enabled: true,
			Secrets: map[string]string{"api_key": "k"},
			Params:  params,
		})
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) || cfgErr.Code != config.CodeInvalidValue {
			t.Fatalf("Build(%v) error = %v, want INVALID_VALUE", params, err)
		}
	}
}

func TestCatalogComposesWithRegistry(t *testing.T) {
	resolver := config.NewResolver(config.NewSnapshot(nil, []string{
		"TOOL_WEATHER_ENABLED=true",
		"TOOL_WEATHER_CONFIG__API_KEY=k",
		"TOOL_GITHUB_ISSUES_ENABLED=true",
	}, nil), nil)

	registry, err := tool.BuildRegistry(Definitions(), resolver, tool.BuildOptions{})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	names := registry.Names()
	want := []string{"weather", "github_issues"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	if _, ok := registry.Lookup("slack_post_message"); ok {
		t.Fatal("Lookup(slack_post_message) succeeded for a disabled tool")
	}
}
