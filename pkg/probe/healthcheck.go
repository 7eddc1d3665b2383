package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// bodyPreviewLimit bounds how much of a probed page is read.
const bodyPreviewLimit = 2000

// Healthchecker probes site URLs and optionally captures screenshots
// with whatever local tool is installed. LookPath and RunCommand exist
// for tests.
type Healthchecker struct {
	HTTPClient *http.Client
	LookPath   func(string) (string, error)
	RunCommand func(ctx context.Context, name string, args ...string) error
}

func (h *Healthchecker) lookPath(name string) (string, error) {
	if h.LookPath != nil {
		return h.LookPath(name)
	}
	return exec.LookPath(name)
}

func (h *Healthchecker) runCommand(ctx context.Context, name string, args ...string) error {
	if h.RunCommand != nil {
		return h.RunCommand(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

func (h *Healthchecker) httpClient() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

// Check probes url and reports status, body keyword presence and an
// optional screenshot. ok requires HTTP 200 and, when a keyword is
// given, its presence in the first 2000 bytes of the body.
func (h *Healthchecker) Check(ctx context.Context, url, keyword string, screenshot bool, outPath string) map[string]any {
	result := map[string]any{"url": url, "status": 0, "ok": false}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result["error"] = err.Error()
		return result
	}
	resp, err := h.httpClient().Do(req)
	if err != nil {
		result["error"] = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewLimit))

	ok := resp.StatusCode == http.StatusOK
	result["status"] = resp.StatusCode
	if keyword != "" {
		present := strings.Contains(string(body), keyword)
		result["keyword_present"] = present
		ok = ok && present
	}
	result["ok"] = ok

	if screenshot {
		if outPath == "" {
			outPath = "/tmp/site.png"
		}
		result["screenshot"] = h.Screenshot(ctx, url, outPath)
	}
	return result
}

// chromeBinaries in probe order.
var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium-browser"}

// Screenshot captures url to outPath, trying wkhtmltoimage first and
// falling back to headless Chrome/Chromium.
func (h *Healthchecker) Screenshot(ctx context.Context, url, outPath string) map[string]any {
	if dir := filepath.Dir(outPath); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}

	if _, err := h.lookPath("wkhtmltoimage"); err == nil {
		err := h.runCommand(ctx, "wkhtmltoimage", "--format", "png", "--width", "1366", url, outPath)
		if err == nil {
			return map[string]any{"ok": true, "path": outPath, "tool": "wkhtmltoimage"}
		}
	}

	for _, chrome := range chromeBinaries {
		if _, err := h.lookPath(chrome); err != nil {
			continue
		}
		err := h.runCommand(ctx, chrome,
			"--headless", "--disable-gpu", "--hide-scrollbars",
			"--window-size=1366,768", fmt.Sprintf("--screenshot=%s", outPath), url)
		if err == nil {
			return map[string]any{"ok": true, "path": outPath, "tool": chrome}
		}
	}

	return map[string]any{
		"ok":    false,
		"path":  outPath,
		"error": "no screenshot tool found (install wkhtmltoimage or Chrome/Chromium headless)",
	}
}
