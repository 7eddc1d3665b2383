package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/types"
)

type healthcheckArgs struct {
	URL        string `json:"url"`
	Keyword    string `json:"keyword"`
	Screenshot bool   `json:"screenshot"`
	OutPath    string `json:"out_path"`
}

func (reg *Registry) healthcheck(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a healthcheckArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return reg.deps.Health.Check(ctx, a.URL, a.Keyword, a.Screenshot, a.OutPath), nil
}

type domainArgs struct {
	Domain string `json:"domain"`
}

func (reg *Registry) sslExpiry(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a domainArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	res := reg.deps.Checker.SSLExpiry(a.Domain)
	if !res.OK {
		return nil, errors.New(res.Error)
	}
	return map[string]any{
		"domain":    a.Domain,
		"not_after": res.NotAfter,
		"days_left": res.DaysLeft,
	}, nil
}

func (reg *Registry) domainSSLCollect(ctx context.Context, _ remote.Runner, args types.Args) (map[string]any, error) {
	var a domainArgs
	if err := args.Decode(&a); err != nil {
		return nil, err
	}
	if a.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	report := reg.deps.Checker.Collect(ctx, a.Domain)
	return map[string]any{
		"domain":     report.Domain,
		"whois":      report.Whois,
		"ssl":        report.SSL,
		"ok":         report.OK,
		"checked_at": report.CheckedAt,
	}, nil
}
