package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
)

//go:embed scripts/wp_provision.sh
var provisionScript []byte

//go:embed scripts/wp_reset.sh
var resetScript []byte

type provisionArgs struct {
	Domain           string `json:"domain"`
	WPPath           string `json:"wp_path"`
	SiteTitle        string `json:"site_title"`
	AdminUser        string `json:"admin_user"`
	AdminPass        string `json:"admin_pass"`
	AdminEmail       string `json:"admin_email"`
	DBName           string `json:"db_name"`
	DBUser           string `json:"db_user"`
	DBPass           string `json:"db_pass"`
	PHPVersion       string `json:"php_version"`
	WPVersion        string `json:"wp_version"`
	LetsEncryptEmail string `json:"letsencrypt_email"`
	NonInteractive   string `json:"noninteractive"`
}

func (a *provisionArgs) defaults() {
	if a.WPPath == "" {
		a.WPPath = "/var/www/html"
	}
	if a.SiteTitle == "" {
		a.SiteTitle = "My Site"
	}
	if a.AdminUser == "" {
		a.AdminUser = "admin"
	}
	if a.PHPVersion == "" {
		a.PHPVersion = "8.1"
	}
	if a.WPVersion == "" {
		a.WPVersion = "latest"
	}
	if a.NonInteractive == "" {
		a.NonInteractive = "true"
	}
}

// runScriptReport runs an uploaded script under sudo and reads the JSON
// report it leaves behind. A missing or malformed report degrades to
// {status: "unknown", raw: <output>} instead of failing the task.
func runScriptReport(ctx context.Context, r remote.Runner, remoteScript, cmd, reportPath string) (map[string]any, error) {
	if res, err := r.Sudo(ctx, "chmod +x "+remote.ShellQuote(remoteScript)); err != nil {
		return nil, err
	} else if !res.Ok() {
		return nil, fmt.Errorf("chmod failed: %s", strings.TrimSpace(res.Stderr))
	}

	runRes, err := r.Sudo(ctx, cmd)
	if err != nil {
		return nil, err
	}

	catRes, err := r.Sudo(ctx, "cat "+remote.ShellQuote(reportPath))
	if err != nil {
		return nil, err
	}

	raw := catRes.Stdout
	if !catRes.Ok() {
		raw = runRes.Stdout + runRes.Stderr
	}

	var report map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &report); err != nil {
		return map[string]any{"status": "unknown", "raw": strings.TrimSpace(raw)}, nil
	}
	return report, nil
}

func (reg *Registry) provisionWP(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a provisionArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	a.defaults()
	if a.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	const remoteScript = "/tmp/wp_provision.sh"
	const reportPath = "/tmp/wp_provision_report.json"

	if err := r.Put(ctx, provisionScript, remoteScript, 0644); err != nil {
		return nil, fmt.Errorf("uploading provision script: %w", err)
	}

	cmd := strings.Join([]string{
		remoteScript,
		remote.QuoteAll(a.Domain, a.WPPath, a.SiteTitle, a.AdminUser, a.AdminPass, a.AdminEmail,
			a.DBName, a.DBUser, a.DBPass, a.PHPVersion, a.WPVersion, reportPath,
			a.LetsEncryptEmail, a.NonInteractive),
	}, " ")

	return runScriptReport(ctx, r, remoteScript, cmd, reportPath)
}

type resetArgs struct {
	WPPath     string `json:"wp_path"`
	Domain     string `json:"domain"`
	PurgeStack *bool  `json:"purge_stack"`
	ResetUFW   *bool  `json:"reset_ufw"`
	Force      *bool  `json:"force"`
	ReportPath string `json:"report_path"`
}

func orTrue(b *bool) bool {
	return b == nil || *b
}

func (reg *Registry) wpReset(ctx context.Context, r remote.Runner, args types.Args) (map[string]any, error) {
	var a resetArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.ReportPath == "" {
		a.ReportPath = "/tmp/wp_rollback_report.json"
	}

	const remoteScript = "/tmp/wp_reset.sh"

	if err := r.Put(ctx, resetScript, remoteScript, 0644); err != nil {
		return nil, fmt.Errorf("uploading reset script: %w", err)
	}

	flags := []string{remoteScript}
	if a.WPPath != "" {
		flags = append(flags, "--path", remote.ShellQuote(a.WPPath))
	}
	if a.Domain != "" {
		flags = append(flags, "--domain", remote.ShellQuote(a.Domain))
	}
	flags = append(flags, "--report", remote.ShellQuote(a.ReportPath))
	if orTrue(a.Force) {
		flags = append(flags, "--force")
	}
	if orTrue(a.PurgeStack) {
		flags = append(flags, "--purge-stack")
	}
	if orTrue(a.ResetUFW) {
		flags = append(flags, "--reset-ufw")
	}

	return runScriptReport(ctx, r, remoteScript, strings.Join(flags, " "), a.ReportPath)
}
