package wordpress

import (
	"encoding/json"
	"strings"
)

// PluginRow is the unified projection of one plugin across the status
// shapes the site plugin has produced over time.
type PluginRow struct {
	Name            string `json:"name"`
	Slug            string `json:"slug,omitempty"`
	PluginFile      string `json:"plugin_file"`
	Version         string `json:"version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	Active          *bool  `json:"active,omitempty"`
}

// ThemeRow mirrors PluginRow for themes.
type ThemeRow struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	Active          *bool  `json:"active,omitempty"`
}

// CoreStatus describes the WordPress core install.
type CoreStatus struct {
	Current         string `json:"current_version"`
	Latest          string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
}

// EnvStatus carries server environment versions when the status shape
// exposes them.
type EnvStatus struct {
	PHPVersion   string `json:"php_version,omitempty"`
	MySQLVersion string `json:"mysql_version,omitempty"`
}

// StatusView is the normalised site status every consumer works
// against. Its JSON form round-trips through Coerce unchanged.
type StatusView struct {
	Plugins []PluginRow `json:"plugins"`
	Themes  []ThemeRow  `json:"themes"`
	Core    CoreStatus  `json:"core"`
	Env     EnvStatus   `json:"php_mysql"`
}

// Coerce normalises any status payload into a StatusView. It accepts a
// decoded JSON document, a JSON string or byte slice, and the wrapped
// shapes produced by task plumbing ({raw: ...}, {result: {raw: ...}},
// {result: {...}}). Unrecognisable input yields an empty view.
func Coerce(v any) *StatusView {
	switch t := v.(type) {
	case nil:
		return &StatusView{}
	case *StatusView:
		return t
	case StatusView:
		return &t
	case string:
		return coerceJSON([]byte(t))
	case []byte:
		return coerceJSON(t)
	case map[string]any:
		return coerceMap(t, 0)
	default:
		return &StatusView{}
	}
}

func coerceJSON(data []byte) *StatusView {
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(data)), "\ufeff")
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return &StatusView{}
	}
	if m, ok := decoded.(map[string]any); ok {
		return coerceMap(m, 0)
	}
	return &StatusView{}
}

func coerceMap(m map[string]any, depth int) *StatusView {
	if depth > 4 {
		return &StatusView{}
	}

	// Unwrap transport envelopes until a body carrying plugins and
	// themes is reached.
	_, hasPlugins := m["plugins"]
	_, hasThemes := m["themes"]
	if !hasPlugins || !hasThemes {
		if raw, ok := m["raw"]; ok {
			return unwrap(raw, depth)
		}
		if result, ok := m["result"]; ok {
			return unwrap(result, depth)
		}
		return &StatusView{}
	}

	view := &StatusView{
		Plugins: coercePlugins(m["plugins"]),
		Themes:  coerceThemes(m["themes"]),
		Core:    coerceCore(m["core"]),
	}
	if env, ok := m["php_mysql"].(map[string]any); ok {
		view.Env = EnvStatus{
			PHPVersion:   str(env, "php_version"),
			MySQLVersion: str(env, "mysql_version"),
		}
	}
	return view
}

func unwrap(v any, depth int) *StatusView {
	switch t := v.(type) {
	case map[string]any:
		return coerceMap(t, depth+1)
	case string:
		return coerceJSON([]byte(t))
	default:
		return &StatusView{}
	}
}

func coercePlugins(v any) []PluginRow {
	var rows []PluginRow
	for _, item := range listOf(v) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := PluginRow{
			Name:          str(m, "name"),
			Slug:          str(m, "slug"),
			PluginFile:    firstStr(m, "plugin_file", "file"),
			Version:       firstStr(m, "version", "installed"),
			LatestVersion: firstStr(m, "latest_version", "available"),
			Active:        boolPtr(m, "active"),
		}
		row.UpdateAvailable = updateFlag(m, row.Version, row.LatestVersion)
		rows = append(rows, row)
	}
	return rows
}

func coerceThemes(v any) []ThemeRow {
	var rows []ThemeRow
	for _, item := range listOf(v) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := ThemeRow{
			Name:          firstStr(m, "name", "stylesheet"),
			Version:       firstStr(m, "version", "installed"),
			LatestVersion: firstStr(m, "latest_version", "available"),
			Active:        boolPtr(m, "active"),
		}
		row.UpdateAvailable = updateFlag(m, row.Version, row.LatestVersion)
		rows = append(rows, row)
	}
	return rows
}

// listOf flattens the two list encodings: a bare array (legacy) or an
// object with a "list" member (new).
func listOf(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if l, ok := t["list"].([]any); ok {
			return l
		}
	}
	return nil
}

func coerceCore(v any) CoreStatus {
	m, ok := v.(map[string]any)
	if !ok {
		return CoreStatus{}
	}

	if _, legacy := m["current_version"]; legacy {
		core := CoreStatus{
			Current: str(m, "current_version"),
			Latest:  str(m, "latest_version"),
		}
		if b, ok := m["update_available"].(bool); ok {
			core.UpdateAvailable = b
		} else {
			core.UpdateAvailable = core.Latest != "" && core.Current != core.Latest
		}
		return core
	}

	core := CoreStatus{Current: str(m, "installed"), Latest: str(m, "installed")}
	if updates, ok := m["updates"].([]any); ok {
		for _, u := range updates {
			um, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if v := str(um, "version"); v != "" {
				core.Latest = v
			}
			resp := strings.ToLower(str(um, "response"))
			if resp == "upgrade" {
				core.UpdateAvailable = true
			}
		}
	}
	if !core.UpdateAvailable {
		core.UpdateAvailable = core.Latest != "" && core.Current != core.Latest
	}
	return core
}

func updateFlag(m map[string]any, installed, latest string) bool {
	if b, ok := m["update_available"].(bool); ok {
		return b
	}
	if b, ok := m["has_update"].(bool); ok {
		return b
	}
	return latest != "" && installed != latest
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m, k); s != "" {
			return s
		}
	}
	return ""
}

func boolPtr(m map[string]any, key string) *bool {
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}

// SelectOutdated returns the plugin files eligible for update: rows
// flagged outdated, carrying a plugin file, and not blocklisted.
func SelectOutdated(view *StatusView, blocklist []string) []string {
	blocked := make(map[string]bool, len(blocklist))
	for _, b := range blocklist {
		blocked[b] = true
	}
	var files []string
	for _, row := range view.Plugins {
		if row.UpdateAvailable && row.PluginFile != "" && !blocked[row.PluginFile] {
			files = append(files, row.PluginFile)
		}
	}
	return files
}

// NormalizePlugins resolves caller-supplied plugin tokens (slugs, human
// names or plugin files) against the status snapshot. Tokens that
// already look like a plugin file, or that match nothing, pass through
// unchanged.
func NormalizePlugins(view *StatusView, requested []string) []string {
	resolved := make([]string, 0, len(requested))
	for _, token := range requested {
		resolved = append(resolved, resolvePlugin(view, token))
	}
	return resolved
}

func resolvePlugin(view *StatusView, token string) string {
	if strings.Contains(token, "/") && strings.HasSuffix(token, ".php") {
		return token
	}
	for _, row := range view.Plugins {
		if row.Slug != "" && row.Slug == token && row.PluginFile != "" {
			return row.PluginFile
		}
	}
	for _, row := range view.Plugins {
		if strings.EqualFold(row.Name, token) && row.PluginFile != "" {
			return row.PluginFile
		}
	}
	for _, row := range view.Plugins {
		if strings.HasPrefix(row.PluginFile, token+"/") {
			return row.PluginFile
		}
	}
	return token
}

// Row returns the plugin row for a plugin file, if present.
func (v *StatusView) Row(pluginFile string) (PluginRow, bool) {
	for _, row := range v.Plugins {
		if row.PluginFile == pluginFile {
			return row, true
		}
	}
	return PluginRow{}, false
}
