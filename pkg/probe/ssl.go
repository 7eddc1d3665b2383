package probe

import (
	"crypto/tls"
	"fmt"
	"net"
)

// SSLResult reports a certificate expiry probe.
type SSLResult struct {
	OK       bool   `json:"ok"`
	NotAfter string `json:"not_after,omitempty"`
	DaysLeft int    `json:"days_left,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SSLExpiry connects to domain:443, reads the peer certificate and
// returns its expiry. Failures are reported as "SSL error: ..." strings
// rather than Go errors so they can travel inside task results.
func (c *Checker) SSLExpiry(domain string) SSLResult {
	dialer := &net.Dialer{Timeout: c.dialTimeout()}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(domain, "443"), &tls.Config{
		ServerName: domain,
	})
	if err != nil {
		return SSLResult{Error: fmt.Sprintf("SSL error: %v", err)}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return SSLResult{Error: "SSL error: no peer certificate"}
	}

	notAfter := certs[0].NotAfter
	days := int(notAfter.Sub(c.now().UTC()).Hours() / 24)
	return SSLResult{
		OK:       true,
		NotAfter: formatUTC(notAfter),
		DaysLeft: days,
	}
}
