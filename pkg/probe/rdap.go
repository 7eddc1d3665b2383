package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// rdapDocument is the subset of an RDAP domain answer the checker
// needs.
type rdapDocument struct {
	Events []struct {
		EventAction string `json:"eventAction"`
		EventDate   string `json:"eventDate"`
	} `json:"events"`
}

var expiryActions = map[string]bool{
	"expiration": true,
	"expires":    true,
	"expiry":     true,
}

// DomainExpiry queries the RDAP aggregator for the domain's expiration
// event. On success it returns the timestamp as "YYYY-MM-DD HH:MM:SS"
// in UTC; every failure mode collapses to a "WHOIS error: ..." string.
func (c *Checker) DomainExpiry(ctx context.Context, domain string) string {
	url := fmt.Sprintf("%s/domain/%s", c.rdapBase(), domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("WHOIS error: RDAP request failed (%v)", err)
	}
	req.Header.Set("User-Agent", "steward/1.0")

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Sprintf("WHOIS error: RDAP request failed (%v)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("WHOIS error: RDAP request failed (HTTP %d)", resp.StatusCode)
	}

	var doc rdapDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Sprintf("WHOIS error: RDAP request failed (%v)", err)
	}

	for _, ev := range doc.Events {
		if !expiryActions[ev.EventAction] {
			continue
		}
		if t, ok := ParseLooseDate(ev.EventDate); ok {
			return formatUTC(t)
		}
	}
	return "WHOIS error: RDAP had no expiration event"
}
