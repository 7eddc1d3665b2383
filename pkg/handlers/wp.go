package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
)

// wpCmd runs a wp-cli subcommand inside the install directory.
func wpCmd(ctx context.Context, r remote.Runner, wpPath, sub string) (*remote.CommandResult, error) {
	return r.Run(ctx, fmt.Sprintf("cd %s && wp %s", remote.ShellQuote(wpPath), sub))
}

func parseJSONArray(out string) []any {
	var arr []any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &arr); err != nil {
		return []any{}
	}
	return arr
}

type wpStatusArgs struct {
	WPPath string `json:"wp_path"`
}

func (reg *Registry) wpStatus(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a wpStatusArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.WPPath == "" {
		a.WPPath = r.Site().WPPath
	}

	result := map[string]any{}
	for key, sub := range map[string]string{
		"core":    "core check-update --format=json",
		"plugins": "plugin list --update=available --format=json",
		"themes":  "theme list --update=available --format=json",
	} {
		res, err := wpCmd(ctx, r, a.WPPath, sub)
		if err != nil {
			return nil, err
		}
		result[key] = parseJSONArray(res.Stdout)
	}
	return result, nil
}

func (reg *Registry) updateWithRollback(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a backupArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	a.fill(r.Site())

	snap, err := reg.snapshot(ctx, r, &a)
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	snapMap := map[string]any{
		"db_dump":     snap.DBDump,
		"content_tar": snap.ContentTar,
		"timestamp":   snap.Timestamp,
	}

	res, err := wpCmd(ctx, r, a.WPPath, "plugin update --all --format=json")
	if err == nil && res.Ok() {
		return map[string]any{
			"updated":  true,
			"snapshot": snapMap,
			"details":  map[string]any{"plugins": parseJSONArray(res.Stdout)},
		}, nil
	}

	updateErr := "plugin update exited non-zero"
	if err != nil {
		updateErr = err.Error()
	} else if msg := strings.TrimSpace(res.Stderr); msg != "" {
		updateErr = msg
	}
	log.WithHost(r.Site().Host).Warn().Str("error", updateErr).Msg("plugin update failed, restoring snapshot")

	restoreErrors := reg.restore(ctx, r, &a, snap)
	result := map[string]any{
		"updated":  false,
		"error":    updateErr,
		"snapshot": snapMap,
		"restored": len(restoreErrors) == 0,
	}
	if len(restoreErrors) > 0 {
		result["restore_errors"] = restoreErrors
	}
	return result, nil
}

// restore plays the snapshot back: database first, then wp-content with
// permission normalisation. Each step records its own failure and the
// rest still run.
func (reg *Registry) restore(ctx context.Context, r remote.Runner, a *backupArgs, snap *types.Snapshot) []string {
	var errs []string

	dbCmd := fmt.Sprintf("export MYSQL_PWD=%s; gunzip -c %s | mysql -u %s %s",
		remote.ShellQuote(a.DBPass), remote.ShellQuote(snap.DBDump),
		remote.ShellQuote(a.DBUser), remote.ShellQuote(a.DBName))
	if res, err := r.Run(ctx, dbCmd); err != nil {
		errs = append(errs, fmt.Sprintf("db_restore: %v", err))
	} else if !res.Ok() {
		errs = append(errs, fmt.Sprintf("db_restore: %s", strings.TrimSpace(res.Stderr)))
	}

	contentDir := a.WPPath + "/wp-content"
	steps := []string{
		"mkdir -p " + remote.ShellQuote(contentDir),
		fmt.Sprintf("tar -C %s -xzf %s", remote.ShellQuote(a.WPPath), remote.ShellQuote(snap.ContentTar)),
	}
	for _, cmd := range steps {
		if res, err := r.Run(ctx, cmd); err != nil {
			errs = append(errs, fmt.Sprintf("content_restore: %v", err))
			return errs
		} else if !res.Ok() {
			errs = append(errs, fmt.Sprintf("content_restore: %s", strings.TrimSpace(res.Stderr)))
			return errs
		}
	}

	// Best effort: tarballs made under a different umask leave odd
	// modes behind.
	quoted := remote.ShellQuote(contentDir)
	_, _ = r.Run(ctx, fmt.Sprintf("find %s -type d -exec chmod 755 {} +", quoted))
	_, _ = r.Run(ctx, fmt.Sprintf("find %s -type f -exec chmod 644 {} +", quoted))

	return errs
}
