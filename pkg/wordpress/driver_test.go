package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSite serves the companion-plugin endpoints with a mutable plugin
// table so update POSTs can be observed and simulated.
type fakeSite struct {
	mu           sync.Mutex
	plugins      map[string][2]string // plugin_file -> {installed, latest}
	core         [2]string            // {installed, latest}
	updatePOSTs  []recordedPost
	applyUpdates bool // whether an update POST moves installed to latest
	failForm     bool // reject form-encoded POSTs to force the JSON rung
}

type recordedPost struct {
	contentType string
	plugins     string
	mode        string
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wp-json/custom/v1/status", f.status)
	mux.HandleFunc("POST /wp-json/custom/v1/update-plugins", f.updatePlugins)
	mux.HandleFunc("POST /wp-json/custom/v1/update-core", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "mode": "core"})
	})
	return mux
}

func (f *fakeSite) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []map[string]any
	for file, versions := range f.plugins {
		rows = append(rows, map[string]any{
			"name":             file,
			"slug":             file[:len(file)-len("/x.php")],
			"plugin_file":      file,
			"version":          versions[0],
			"latest_version":   versions[1],
			"update_available": versions[0] != versions[1],
			"active":           true,
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"plugins": rows,
		"themes":  []any{},
		"core": map[string]any{
			"current_version":  f.core[0],
			"latest_version":   f.core[1],
			"update_available": f.core[0] != f.core[1],
		},
	})
}

func (f *fakeSite) updatePlugins(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ct := r.Header.Get("Content-Type")
	var plugins, mode string
	switch ct {
	case "application/x-www-form-urlencoded":
		if f.failForm {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "form transport disabled")
			return
		}
		_ = r.ParseForm()
		plugins = r.PostFormValue("plugins")
		mode = r.PostFormValue("mode")
	case "application/json":
		var body struct {
			Plugins []string `json:"plugins"`
			Mode    string   `json:"mode"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i, p := range body.Plugins {
			if i > 0 {
				plugins += ","
			}
			plugins += p
		}
		mode = body.Mode
	}

	f.updatePOSTs = append(f.updatePOSTs, recordedPost{ct, plugins, mode})
	if f.applyUpdates {
		for file, versions := range f.plugins {
			versions[0] = versions[1]
			f.plugins[file] = versions
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func newTestDriver(url string) *Driver {
	return &Driver{
		BaseURL:        url,
		SettleInterval: time.Millisecond,
		VerifyAttempts: 2,
	}
}

func TestUpdatePluginsFirstRungVerifies(t *testing.T) {
	site := &fakeSite{
		plugins:      map[string][2]string{"akismet/x.php": {"5.3", "5.4"}},
		core:         [2]string{"6.6", "6.6"},
		applyUpdates: true,
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet/x.php"})

	assert.True(t, report.OK)
	assert.Empty(t, report.PerPlugin)
	require.Len(t, report.Batch, 1)
	assert.Equal(t, "form", report.Batch[0].Transport)
	assert.True(t, report.Batch[0].Verified)
	assert.Equal(t, "5.3", report.Initial["akismet/x.php"])
	assert.Equal(t, "5.4", report.Final["akismet/x.php"])

	require.Len(t, site.updatePOSTs, 1)
	assert.Equal(t, "akismet/x.php", site.updatePOSTs[0].plugins)
	assert.Equal(t, "single", site.updatePOSTs[0].mode)
}

func TestUpdatePluginsFallsBackToJSON(t *testing.T) {
	site := &fakeSite{
		plugins:      map[string][2]string{"akismet/x.php": {"5.3", "5.4"}},
		core:         [2]string{"6.6", "6.6"},
		applyUpdates: true,
		failForm:     true,
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet/x.php"})

	assert.True(t, report.OK)
	require.Len(t, report.Batch, 2)
	assert.Equal(t, "form", report.Batch[0].Transport)
	assert.False(t, report.Batch[0].Verified)
	assert.Equal(t, "json", report.Batch[1].Transport)
	assert.True(t, report.Batch[1].Verified)
}

func TestUpdatePluginsLadderExhausted(t *testing.T) {
	site := &fakeSite{
		plugins: map[string][2]string{"akismet/x.php": {"5.3", "5.4"}},
		core:    [2]string{"6.6", "6.6"},
		// applyUpdates false: the site accepts POSTs but nothing moves.
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet/x.php"})

	assert.False(t, report.OK)
	assert.Equal(t, "update ladder exhausted without verification", report.Error)
	assert.Len(t, report.Batch, 2)
	assert.Len(t, report.PerPlugin, 2)
}

func TestUpdatePluginsBulkMode(t *testing.T) {
	site := &fakeSite{
		plugins: map[string][2]string{
			"akismet/x.php": {"5.3", "5.4"},
			"jetpack/x.php": {"12.0", "12.1"},
		},
		core:         [2]string{"6.6", "6.6"},
		applyUpdates: true,
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet/x.php", "jetpack/x.php"})

	assert.True(t, report.OK)
	require.NotEmpty(t, site.updatePOSTs)
	assert.Equal(t, "bulk", site.updatePOSTs[0].mode)
}

func TestUpdatePluginsAlreadyCurrent(t *testing.T) {
	// Installed equals latest before any POST: step 1 verifies with no
	// version movement at all.
	site := &fakeSite{
		plugins: map[string][2]string{"akismet/x.php": {"5.4", "5.4"}},
		core:    [2]string{"6.6", "6.6"},
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet/x.php"})

	assert.True(t, report.OK)
	assert.Empty(t, report.PerPlugin)
	require.Len(t, report.Batch, 1)
}

func TestUpdatePluginsNormalizesSlug(t *testing.T) {
	site := &fakeSite{
		plugins:      map[string][2]string{"akismet/x.php": {"5.3", "5.4"}},
		core:         [2]string{"6.6", "6.6"},
		applyUpdates: true,
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	report := newTestDriver(srv.URL).UpdatePlugins(context.Background(), []string{"akismet"})

	assert.True(t, report.OK)
	assert.Equal(t, []string{"akismet/x.php"}, report.Targets)
	require.NotEmpty(t, site.updatePOSTs)
	assert.Equal(t, "akismet/x.php", site.updatePOSTs[0].plugins)
}

func TestUpdatePluginsEmptyRequest(t *testing.T) {
	report := newTestDriver("http://unused.invalid").UpdatePlugins(context.Background(), nil)

	assert.False(t, report.OK)
	assert.Equal(t, "no plugins requested", report.Error)
}

func TestUpdateCorePrecheckSkips(t *testing.T) {
	site := &fakeSite{
		plugins: map[string][2]string{},
		core:    [2]string{"6.6", "6.6"},
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	result := newTestDriver(srv.URL).UpdateCore(context.Background(), true)

	assert.Equal(t, true, result["ok"])
	assert.Equal(t, true, result["skipped"])
	assert.Equal(t, "6.6", result["current"])
	assert.NotNil(t, result["status_snapshot"])
}

func TestUpdateCorePosts(t *testing.T) {
	site := &fakeSite{
		plugins: map[string][2]string{},
		core:    [2]string{"6.5", "6.6"},
	}
	srv := httptest.NewServer(site.handler())
	defer srv.Close()

	result := newTestDriver(srv.URL).UpdateCore(context.Background(), true)

	assert.Equal(t, true, result["ok"])
	assert.Equal(t, 200, result["status_code"])
	assert.Nil(t, result["skipped"])
	response, ok := result["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "core", response["mode"])
}

func TestFetchStatusBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, legacyStatus)
	}))
	defer srv.Close()

	d := newTestDriver(srv.URL)
	d.Username = "admin"
	d.Password = "secret"

	view, _, err := d.FetchStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, view.Plugins, 2)

	_, _, err = newTestDriver(srv.URL).FetchStatus(context.Background())
	assert.Error(t, err)
}

func TestEnsureStatusRoute(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare root", "https://example.com", "https://example.com/wp-json/custom/v1/status"},
		{"root slash", "https://example.com/", "https://example.com/wp-json/custom/v1/status"},
		{"wp-json", "https://example.com/wp-json", "https://example.com/wp-json/custom/v1/status"},
		{"wp-json slash", "https://example.com/wp-json/", "https://example.com/wp-json/custom/v1/status"},
		{"explicit route kept", "https://example.com/wp-json/other/v2/thing", "https://example.com/wp-json/other/v2/thing"},
		{"subdir kept", "https://example.com/blog/page", "https://example.com/blog/page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EnsureStatusRoute(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchOutdated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/custom/v1/status", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept"), "application/json")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, newStatus)
	}))
	defer srv.Close()

	result := FetchOutdated(context.Background(), srv.URL, FetchOutdatedOptions{})

	require.Equal(t, true, result["ok"])
	summary, ok := result["summary"].(*OutdatedSummary)
	require.True(t, ok)
	require.Len(t, summary.PluginsOutdated, 1)
	assert.Equal(t, "Akismet Anti-spam", summary.PluginsOutdated[0].Name)
	assert.True(t, summary.CoreUpdateAvailable)
}

func TestFetchOutdatedRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>maintenance</body></html>")
	}))
	defer srv.Close()

	result := FetchOutdated(context.Background(), srv.URL, FetchOutdatedOptions{})

	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "response is not JSON", result["error"])
	assert.Contains(t, result["body_preview"], "maintenance")
}

func TestFetchOutdatedBOMBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "\ufeff"+legacyStatus)
	}))
	defer srv.Close()

	result := FetchOutdated(context.Background(), srv.URL, FetchOutdatedOptions{})

	assert.Equal(t, true, result["ok"])
}

func TestFetchOutdatedUnknownSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"hello": "world"}`)
	}))
	defer srv.Close()

	result := FetchOutdated(context.Background(), srv.URL, FetchOutdatedOptions{})

	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "unrecognized status schema", result["error"])
}

func TestDriverClientSelection(t *testing.T) {
	d := &Driver{}
	assert.Equal(t, 10*time.Minute, d.updateClient().Timeout)
	assert.Equal(t, 30*time.Second, d.statusClient().Timeout)

	// An explicit HTTPClient serves both concerns when no StatusClient
	// is set.
	d.HTTPClient = &http.Client{Timeout: 600 * time.Second}
	assert.Equal(t, 600*time.Second, d.updateClient().Timeout)
	assert.Equal(t, 600*time.Second, d.statusClient().Timeout)

	d.StatusClient = &http.Client{Timeout: 30 * time.Second}
	assert.Equal(t, 600*time.Second, d.updateClient().Timeout)
	assert.Equal(t, 30*time.Second, d.statusClient().Timeout)
}
