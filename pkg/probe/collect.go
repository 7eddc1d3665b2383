package probe

import (
	"context"
	"strings"
)

// DomainReport is the combined domain + certificate expiry report.
type DomainReport struct {
	Domain    string         `json:"domain"`
	Whois     map[string]any `json:"whois"`
	SSL       map[string]any `json:"ssl"`
	OK        bool           `json:"ok"`
	CheckedAt string         `json:"checked_at"`
}

// Collect runs the RDAP and certificate probes independently and folds
// both outcomes into one report. The probes never abort each other; the
// top-level ok is their conjunction.
func (c *Checker) Collect(ctx context.Context, domain string) *DomainReport {
	report := &DomainReport{
		Domain:    domain,
		CheckedAt: formatUTC(c.now()),
	}

	expiry := c.DomainExpiry(ctx, domain)
	if strings.HasPrefix(expiry, "WHOIS error:") {
		report.Whois = map[string]any{"ok": false, "error": expiry}
	} else {
		report.Whois = map[string]any{"ok": true, "expires_at": expiry}
	}

	ssl := c.SSLExpiry(domain)
	if ssl.OK {
		report.SSL = map[string]any{
			"ok":        true,
			"not_after": ssl.NotAfter,
			"days_left": ssl.DaysLeft,
		}
	} else {
		report.SSL = map[string]any{"ok": false, "error": ssl.Error}
	}

	report.OK = report.Whois["ok"] == true && ssl.OK
	return report
}
