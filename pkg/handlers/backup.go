package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
)

const backupTimestampLayout = "20060102150405"

type backupArgs struct {
	WPPath string `json:"wp_path"`
	DBName string `json:"db_name"`
	DBUser string `json:"db_user"`
	DBPass string `json:"db_pass"`
	OutDir string `json:"out_dir"`
}

func (a *backupArgs) fill(site *types.SiteRecord) {
	if a.WPPath == "" {
		a.WPPath = site.WPPath
	}
	if a.DBName == "" {
		a.DBName = site.DBName
	}
	if a.DBUser == "" {
		a.DBUser = site.DBUser
	}
	if a.DBPass == "" {
		a.DBPass = site.DBPass
	}
	if a.OutDir == "" {
		a.OutDir = "/tmp/backups"
	}
}

// dumpDB writes a gzipped database dump. The password travels through
// the environment, never the command line.
func dumpDB(ctx context.Context, r remote.Runner, a *backupArgs, ts string) (string, error) {
	sql := fmt.Sprintf("%s/%s-%s.sql.gz", a.OutDir, a.DBName, ts)
	cmd := fmt.Sprintf("export MYSQL_PWD=%s; mysqldump -u %s %s | gzip > %s",
		remote.ShellQuote(a.DBPass), remote.ShellQuote(a.DBUser), remote.ShellQuote(a.DBName), remote.ShellQuote(sql))
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("mysqldump failed: %s", strings.TrimSpace(res.Stderr))
	}
	return sql, nil
}

// tarContent archives wp-content relative to the install directory.
func tarContent(ctx context.Context, r remote.Runner, a *backupArgs, ts string) (string, error) {
	tar := fmt.Sprintf("%s/wp-content-%s.tar.gz", a.OutDir, ts)
	cmd := fmt.Sprintf("tar -C %s -czf %s wp-content",
		remote.ShellQuote(a.WPPath), remote.ShellQuote(tar))
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("tar failed: %s", strings.TrimSpace(res.Stderr))
	}
	return tar, nil
}

func ensureOutDir(ctx context.Context, r remote.Runner, outDir string) error {
	res, err := r.Run(ctx, "mkdir -p "+remote.ShellQuote(outDir))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("creating %s: %s", outDir, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// snapshot produces the full backup pair used by backup_site and the
// rollback path of update_with_rollback.
func (reg *Registry) snapshot(ctx context.Context, r remote.Runner, a *backupArgs) (*types.Snapshot, error) {
	ts := time.Now().UTC().Format(backupTimestampLayout)
	if err := ensureOutDir(ctx, r, a.OutDir); err != nil {
		return nil, err
	}
	sql, err := dumpDB(ctx, r, a, ts)
	if err != nil {
		return nil, err
	}
	tar, err := tarContent(ctx, r, a, ts)
	if err != nil {
		return nil, err
	}
	return &types.Snapshot{DBDump: sql, ContentTar: tar, Timestamp: ts}, nil
}

func (reg *Registry) backupSite(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a backupArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	a.fill(r.Site())

	snap, err := reg.snapshot(ctx, r, &a)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"db_dump":     snap.DBDump,
		"content_tar": snap.ContentTar,
		"timestamp":   snap.Timestamp,
	}, nil
}

func (reg *Registry) backupDB(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a backupArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	a.fill(r.Site())

	ts := time.Now().UTC().Format(backupTimestampLayout)
	if err := ensureOutDir(ctx, r, a.OutDir); err != nil {
		return nil, err
	}
	sql, err := dumpDB(ctx, r, &a, ts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"db_dump": sql, "timestamp": ts}, nil
}

func (reg *Registry) backupWPContent(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a backupArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	a.fill(r.Site())

	ts := time.Now().UTC().Format(backupTimestampLayout)
	if err := ensureOutDir(ctx, r, a.OutDir); err != nil {
		return nil, err
	}
	tar, err := tarContent(ctx, r, &a, ts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content_tar": tar, "timestamp": ts}, nil
}
