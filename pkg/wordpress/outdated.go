package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OutdatedItem is one outdated plugin or theme in the fetch summary.
type OutdatedItem struct {
	Name    string `json:"name"`
	Active  *bool  `json:"active"`
	Current string `json:"current"`
	Latest  string `json:"latest"`
}

// OutdatedSummary condenses a status view down to what needs updating.
type OutdatedSummary struct {
	PluginsOutdated     []OutdatedItem `json:"plugins_outdated"`
	ThemesOutdated      []OutdatedItem `json:"themes_outdated"`
	CoreUpdateAvailable bool           `json:"core_update_available"`
	CoreCurrent         string         `json:"core_current"`
	CoreLatest          string         `json:"core_latest"`
	PHPVersion          string         `json:"php_version,omitempty"`
	MySQLVersion        string         `json:"mysql_version,omitempty"`
}

// Summarize reduces a status view to its outdated components.
func Summarize(view *StatusView) *OutdatedSummary {
	summary := &OutdatedSummary{
		PluginsOutdated:     []OutdatedItem{},
		ThemesOutdated:      []OutdatedItem{},
		CoreUpdateAvailable: view.Core.UpdateAvailable,
		CoreCurrent:         view.Core.Current,
		CoreLatest:          view.Core.Latest,
		PHPVersion:          view.Env.PHPVersion,
		MySQLVersion:        view.Env.MySQLVersion,
	}
	for _, p := range view.Plugins {
		if p.UpdateAvailable {
			summary.PluginsOutdated = append(summary.PluginsOutdated, OutdatedItem{
				Name:    p.Name,
				Active:  p.Active,
				Current: p.Version,
				Latest:  p.LatestVersion,
			})
		}
	}
	for _, t := range view.Themes {
		if t.UpdateAvailable {
			summary.ThemesOutdated = append(summary.ThemesOutdated, OutdatedItem{
				Name:    t.Name,
				Active:  t.Active,
				Current: t.Version,
				Latest:  t.LatestVersion,
			})
		}
	}
	return summary
}

// EnsureStatusRoute rewrites a site URL onto the status route. Bare
// roots and paths ending in /wp-json are rewritten; a caller already
// pointing at a concrete route keeps their path.
func EnsureStatusRoute(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	path := strings.TrimRight(u.Path, "/")
	switch {
	case path == "":
		u.Path = statusRoute
	case strings.HasSuffix(path, "/wp-json"):
		u.Path = strings.TrimSuffix(path, "/wp-json") + statusRoute
	}
	return u.String(), nil
}

// FetchOutdatedOptions tunes a FetchOutdated call.
type FetchOutdatedOptions struct {
	Headers   map[string]string
	BasicAuth string // "user:pass"
	Timeout   time.Duration
}

// FetchOutdated queries a site's status route and returns a summary of
// outdated components. The result is always a JSON-ready map; transport
// and schema failures are reported inside it rather than as errors.
func FetchOutdated(ctx context.Context, rawURL string, opts FetchOutdatedOptions) map[string]any {
	finalURL, err := EnsureStatusRoute(rawURL)
	if err != nil {
		return map[string]any{"ok": false, "status_code": 0, "url": rawURL, "error": err.Error()}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return map[string]any{"ok": false, "status_code": 0, "url": finalURL, "error": err.Error()}
	}
	req.Header.Set("Accept", "application/json, */*;q=0.8")
	req.Header.Set("User-Agent", "steward-outdated-fetcher/1.0")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if user, pass, ok := strings.Cut(opts.BasicAuth, ":"); ok {
		req.SetBasicAuth(user, pass)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return map[string]any{
			"ok":          false,
			"status_code": 0,
			"url":         finalURL,
			"error":       fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(body)), "\ufeff")

	looksJSON := strings.Contains(contentType, "application/json") ||
		strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
	if !looksJSON {
		preview := trimmed
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return map[string]any{
			"ok":           false,
			"status_code":  resp.StatusCode,
			"url":          finalURL,
			"error":        "response is not JSON",
			"content_type": contentType,
			"body_preview": preview,
		}
	}

	var raw any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		preview := trimmed
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return map[string]any{
			"ok":           false,
			"status_code":  resp.StatusCode,
			"url":          finalURL,
			"error":        fmt.Sprintf("invalid JSON: %v", err),
			"content_type": contentType,
			"body_preview": preview,
		}
	}

	view := Coerce(raw)
	if len(view.Plugins) == 0 && len(view.Themes) == 0 && view.Core == (CoreStatus{}) {
		return map[string]any{
			"ok":          false,
			"status_code": resp.StatusCode,
			"url":         finalURL,
			"error":       "unrecognized status schema",
			"raw":         raw,
		}
	}

	return map[string]any{
		"ok":          true,
		"status_code": resp.StatusCode,
		"url":         finalURL,
		"summary":     Summarize(view),
		"raw":         raw,
	}
}
