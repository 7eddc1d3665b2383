package probe

import (
	"net/http"
	"time"
)

const defaultRDAPBase = "https://rdap.org"

// Checker runs domain and certificate expiry probes. The zero value is
// usable; fields exist so tests can point it elsewhere.
type Checker struct {
	RDAPBase    string
	HTTPClient  *http.Client
	DialTimeout time.Duration
	Now         func() time.Time
}

func (c *Checker) rdapBase() string {
	if c.RDAPBase != "" {
		return c.RDAPBase
	}
	return defaultRDAPBase
}

func (c *Checker) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Checker) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 10 * time.Second
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
