/*
Package probe implements the control-plane-local checks: HTTP
healthchecks with optional screenshots, certificate expiry reads and
RDAP domain expiry lookups.

Probe failures are values, not errors. Each probe folds its failure
mode into the report it returns ("SSL error: ...", "WHOIS error: ...")
so a partial outage still produces a complete task result.
*/
package probe
