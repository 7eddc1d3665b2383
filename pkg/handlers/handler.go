package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/wpsteward/steward/pkg/probe"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
)

// Func executes one task kind. A returned error fails the task; the
// error text becomes the task's info.
type Func func(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error)

// Handler binds a task kind to its implementation. Kinds with NeedsSSH
// get a live session opened for them; the rest run control-plane-local.
type Handler struct {
	Kind     string
	NeedsSSH bool
	Fn       Func
}

// Deps carries the shared collaborators handlers draw on.
type Deps struct {
	Checker *probe.Checker
	Health  *probe.Healthchecker

	HTTPTimeout         time.Duration
	PluginUpdateTimeout time.Duration
	SettleInterval      time.Duration
}

// Registry is the full handler table, one entry per task kind.
type Registry struct {
	deps     Deps
	handlers map[string]Handler
}

// NewRegistry builds the handler table.
func NewRegistry(deps Deps) *Registry {
	if deps.Checker == nil {
		deps.Checker = &probe.Checker{}
	}
	if deps.Health == nil {
		deps.Health = &probe.Healthchecker{}
	}
	r := &Registry{deps: deps, handlers: make(map[string]Handler)}

	r.register("wp_status", true, r.wpStatus)
	r.register("backup_site", true, r.backupSite)
	r.register("backup_db", true, r.backupDB)
	r.register("backup_wp_content", true, r.backupWPContent)
	r.register("update_with_rollback", true, r.updateWithRollback)
	r.register("provision_wp_sh", true, r.provisionWP)
	r.register("wp_reset_sh", true, r.wpReset)

	r.register("healthcheck", false, r.healthcheck)
	r.register("ssl_expiry", false, r.sslExpiry)
	r.register("domain_ssl_collect", false, r.domainSSLCollect)
	r.register("wp_outdated_fetch", false, r.wpOutdatedFetch)
	r.register("wp_update_plugins", false, r.wpUpdatePlugins)
	r.register("wp_update_core", false, r.wpUpdateCore)
	r.register("wp_update_all", false, r.wpUpdateAll)

	return r
}

func (r *Registry) register(kind string, needsSSH bool, fn Func) {
	r.handlers[kind] = Handler{Kind: kind, NeedsSSH: needsSSH, Fn: fn}
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds lists every registered task kind, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
