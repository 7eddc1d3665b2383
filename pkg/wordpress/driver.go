package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go/v4"

	"github.com/wpsteward/steward/pkg/log"
)

const (
	statusRoute        = "/wp-json/custom/v1/status"
	updatePluginsRoute = "/wp-json/custom/v1/update-plugins"
	updateCoreRoute    = "/wp-json/custom/v1/update-core"

	// Non-JSON responses are truncated to this many bytes when echoed
	// back in results.
	rawPreviewLimit = 1000
)

// Driver talks to the site-management REST endpoints exposed by the
// in-site companion plugin.
type Driver struct {
	BaseURL  string
	Username string
	Password string
	Headers  map[string]string

	// SettleInterval is the pause between an update POST and the
	// verification status read. Zero means 1s.
	SettleInterval time.Duration

	// VerifyAttempts bounds how many status reads one verification
	// pass may take. Zero means 3.
	VerifyAttempts int

	// HTTPClient serves the long-running update POSTs. Updates can run
	// for minutes, so the default timeout is generous.
	HTTPClient *http.Client

	// StatusClient serves status reads. Nil falls back to HTTPClient.
	StatusClient *http.Client
}

func (d *Driver) updateClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Minute}
}

func (d *Driver) statusClient() *http.Client {
	if d.StatusClient != nil {
		return d.StatusClient
	}
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (d *Driver) settle() time.Duration {
	if d.SettleInterval > 0 {
		return d.SettleInterval
	}
	return time.Second
}

func (d *Driver) verifyAttempts() uint {
	if d.VerifyAttempts > 0 {
		return uint(d.VerifyAttempts)
	}
	return 3
}

func (d *Driver) endpoint(route string) string {
	return strings.TrimRight(d.BaseURL, "/") + route
}

func (d *Driver) prepare(req *http.Request) {
	req.Header.Set("Accept", "application/json, */*;q=0.8")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if d.Username != "" || d.Password != "" {
		req.SetBasicAuth(d.Username, d.Password)
	}
}

// FetchStatus reads the status endpoint and returns the normalised view
// together with the raw decoded document.
func (d *Driver) FetchStatus(ctx context.Context) (*StatusView, any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint(statusRoute), nil)
	if err != nil {
		return nil, nil, err
	}
	d.prepare(req)

	resp, err := d.statusClient().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("status fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("status fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("status fetch: HTTP %d", resp.StatusCode)
	}

	var raw any
	if err := json.Unmarshal(bytes.TrimPrefix(bytes.TrimSpace(body), []byte("\ufeff")), &raw); err != nil {
		return nil, nil, fmt.Errorf("status fetch: invalid JSON: %w", err)
	}
	return Coerce(raw), raw, nil
}

// Attempt records one POST of the update ladder.
type Attempt struct {
	Step       string `json:"step"`
	Transport  string `json:"transport"`
	Plugins    string `json:"plugins"`
	StatusCode int    `json:"status_code"`
	Response   any    `json:"response"`
	Verified   bool   `json:"verified"`
	Error      string `json:"error,omitempty"`
}

// UpdateReport is the outcome of one UpdatePlugins run.
type UpdateReport struct {
	OK        bool              `json:"ok"`
	Requested []string          `json:"requested"`
	Targets   []string          `json:"targets"`
	Batch     []Attempt         `json:"batch"`
	PerPlugin []Attempt         `json:"per_plugin"`
	Initial   map[string]string `json:"initial_versions"`
	Final     map[string]string `json:"final_versions"`
	Error     string            `json:"error,omitempty"`
}

// UpdatePlugins drives plugin updates through the fallback ladder:
// batch form POST, batch JSON POST, then per-plugin form and JSON
// POSTs for anything still unverified. Each POST is followed by a
// settle pause and a status re-read; a plugin counts as updated when
// its installed version changed or now equals its latest.
func (d *Driver) UpdatePlugins(ctx context.Context, requested []string) *UpdateReport {
	report := &UpdateReport{
		Requested: requested,
		Batch:     []Attempt{},
		PerPlugin: []Attempt{},
		Initial:   map[string]string{},
		Final:     map[string]string{},
	}
	if len(requested) == 0 {
		report.Error = "no plugins requested"
		return report
	}

	view, _, err := d.FetchStatus(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	report.Targets = NormalizePlugins(view, requested)
	for _, target := range report.Targets {
		if row, ok := view.Row(target); ok {
			report.Initial[target] = row.Version
		}
	}

	verified := make(map[string]bool, len(report.Targets))

	// Step 1 and 2: batch POSTs.
	for _, transport := range []string{"form", "json"} {
		if allVerified(verified, report.Targets) {
			break
		}
		attempt := d.postUpdate(ctx, report.Targets, transport)
		attempt.Step = "batch"
		d.verify(ctx, report, verified, &attempt, report.Targets)
		report.Batch = append(report.Batch, attempt)
	}

	// Step 3: per-plugin fallback for the stragglers.
	for _, target := range report.Targets {
		if verified[target] {
			continue
		}
		for _, transport := range []string{"form", "json"} {
			attempt := d.postUpdate(ctx, []string{target}, transport)
			attempt.Step = "per_plugin"
			d.verify(ctx, report, verified, &attempt, []string{target})
			report.PerPlugin = append(report.PerPlugin, attempt)
			if verified[target] {
				break
			}
		}
	}

	report.OK = allVerified(verified, report.Targets)
	if !report.OK {
		report.Error = "update ladder exhausted without verification"
	}
	return report
}

func allVerified(verified map[string]bool, targets []string) bool {
	for _, t := range targets {
		if !verified[t] {
			return false
		}
	}
	return len(targets) > 0
}

func (d *Driver) postUpdate(ctx context.Context, plugins []string, transport string) Attempt {
	mode := "bulk"
	if len(plugins) == 1 {
		mode = "single"
	}
	attempt := Attempt{Transport: transport, Plugins: strings.Join(plugins, ",")}

	var body io.Reader
	contentType := ""
	switch transport {
	case "form":
		form := url.Values{}
		form.Set("plugins", strings.Join(plugins, ","))
		form.Set("mode", mode)
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case "json":
		payload, _ := json.Marshal(map[string]any{"plugins": plugins, "mode": mode})
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(updatePluginsRoute), body)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	d.prepare(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := d.updateClient().Do(req)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	attempt.Response = decodeLoose(resp.Body)
	return attempt
}

// verify re-reads status after the settle pause and marks every target
// whose version moved. The read retries a bounded number of times so a
// slow site does not immediately push the ladder to its next rung.
func (d *Driver) verify(ctx context.Context, report *UpdateReport, verified map[string]bool, attempt *Attempt, targets []string) {
	err := retry.Do(
		func() error {
			view, _, err := d.FetchStatus(ctx)
			if err != nil {
				return err
			}
			pending := false
			for _, target := range targets {
				row, ok := view.Row(target)
				if !ok {
					continue
				}
				report.Final[target] = row.Version
				if versionAdvanced(report.Initial[target], row.Version, row.LatestVersion) {
					verified[target] = true
				} else {
					pending = true
				}
			}
			if pending {
				return fmt.Errorf("plugins not yet updated")
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(d.verifyAttempts()),
		retry.Delay(d.settle()),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.WithComponent("wordpress").Debug().Err(err).Msg("update verification pass incomplete")
	}

	attempt.Verified = true
	for _, target := range targets {
		if !verified[target] {
			attempt.Verified = false
		}
	}
}

// versionAdvanced reports whether a plugin moved: its installed version
// changed from before the attempt, or it now matches its latest.
func versionAdvanced(initial, installed, latest string) bool {
	if installed != "" && initial != "" && installed != initial {
		return true
	}
	if installed == "" || latest == "" {
		return false
	}
	if installed == latest {
		return true
	}
	iv, err1 := semver.NewVersion(installed)
	lv, err2 := semver.NewVersion(latest)
	return err1 == nil && err2 == nil && iv.Equal(lv)
}

// UpdateCore triggers a core update. With precheck enabled the status
// endpoint is consulted first and the POST is skipped when core is
// already at its latest version.
func (d *Driver) UpdateCore(ctx context.Context, precheck bool) map[string]any {
	endpoint := d.endpoint(updateCoreRoute)

	if precheck {
		view, raw, err := d.FetchStatus(ctx)
		if err == nil && !view.Core.UpdateAvailable {
			return map[string]any{
				"ok":              true,
				"skipped":         true,
				"reason":          "core already at latest version",
				"current":         view.Core.Current,
				"latest":          view.Core.Latest,
				"status_snapshot": raw,
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return map[string]any{"ok": false, "url": endpoint, "error": err.Error()}
	}
	d.prepare(req)

	resp, err := d.updateClient().Do(req)
	if err != nil {
		return map[string]any{"ok": false, "url": endpoint, "error": err.Error()}
	}
	defer resp.Body.Close()

	return map[string]any{
		"ok":          resp.StatusCode >= 200 && resp.StatusCode < 300,
		"status_code": resp.StatusCode,
		"url":         endpoint,
		"response":    decodeLoose(resp.Body),
	}
}

// decodeLoose parses a response body as JSON, falling back to a
// truncated raw echo when the body is not JSON.
func decodeLoose(r io.Reader) any {
	body, err := io.ReadAll(r)
	if err != nil {
		return map[string]any{"raw": ""}
	}
	var decoded any
	if err := json.Unmarshal(bytes.TrimPrefix(bytes.TrimSpace(body), []byte("\ufeff")), &decoded); err == nil {
		return decoded
	}
	text := string(body)
	if len(text) > rawPreviewLimit {
		text = text[:rawPreviewLimit]
	}
	return map[string]any{"raw": text}
}
