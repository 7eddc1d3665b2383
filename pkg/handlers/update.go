package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
	"github.com/wpsteward/steward/pkg/wordpress"
)

type driverArgs struct {
	BaseURL   string            `json:"base_url"`
	Username  string            `json:"username"`
	Password  string            `json:"password"`
	Headers   map[string]string `json:"headers"`
	Plugins   []string          `json:"plugins"`
	Blocklist []string          `json:"blocklist"`
	Precheck  *bool             `json:"precheck"`
}

// driver builds a REST driver with split timeouts: update POSTs run
// under PluginUpdateTimeout, status reads under HTTPTimeout.
func (reg *Registry) driver(a *driverArgs) *wordpress.Driver {
	d := &wordpress.Driver{
		BaseURL:        a.BaseURL,
		Username:       a.Username,
		Password:       a.Password,
		Headers:        a.Headers,
		SettleInterval: reg.deps.SettleInterval,
	}
	if reg.deps.PluginUpdateTimeout > 0 {
		d.HTTPClient = &http.Client{Timeout: reg.deps.PluginUpdateTimeout}
	}
	if reg.deps.HTTPTimeout > 0 {
		d.StatusClient = &http.Client{Timeout: reg.deps.HTTPTimeout}
	}
	return d
}

func asMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func (reg *Registry) wpUpdatePlugins(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a driverArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	report := reg.driver(&a).UpdatePlugins(ctx, a.Plugins)
	return asMap(report), nil
}

func (reg *Registry) wpUpdateCore(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a driverArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	return reg.driver(&a).UpdateCore(ctx, orTrue(a.Precheck)), nil
}

// wpUpdateAll selects everything outdated on the site (minus the
// blocklist), drives the plugin ladder for it, and optionally follows
// with a core update.
func (reg *Registry) wpUpdateAll(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a struct {
		driverArgs
		UpdateCore bool `json:"update_core"`
	}
	if err := args.Decode(&a); err != nil {
		return nil, err
	}

	d := reg.driver(&a.driverArgs)
	view, _, err := d.FetchStatus(ctx)
	if err != nil {
		return nil, err
	}

	selected := wordpress.SelectOutdated(view, a.Blocklist)
	result := map[string]any{"selected": selected}

	if len(selected) > 0 {
		result["plugins"] = asMap(d.UpdatePlugins(ctx, selected))
	} else {
		result["plugins"] = map[string]any{"ok": true, "requested": []string{}}
	}

	if a.UpdateCore {
		result["core"] = d.UpdateCore(ctx, true)
	}

	ok := true
	if p, isMap := result["plugins"].(map[string]any); isMap {
		ok, _ = p["ok"].(bool)
	}
	result["ok"] = ok
	return result, nil
}

type outdatedArgs struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	BasicAuth string            `json:"basic_auth"`
	TimeoutS  int               `json:"timeout"`
}

func (reg *Registry) wpOutdatedFetch(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a outdatedArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	opts := wordpress.FetchOutdatedOptions{
		Headers:   a.Headers,
		BasicAuth: a.BasicAuth,
	}
	if a.TimeoutS > 0 {
		opts.Timeout = time.Duration(a.TimeoutS) * time.Second
	} else if reg.deps.HTTPTimeout > 0 {
		opts.Timeout = reg.deps.HTTPTimeout
	}
	return wordpress.FetchOutdated(ctx, a.URL, opts), nil
}
