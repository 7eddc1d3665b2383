package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLooseDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"iso zulu", "2026-02-10T00:00:00Z", "2026-02-10 00:00:00", true},
		{"iso offset", "2026-02-10T05:30:00+05:30", "2026-02-10 00:00:00", true},
		{"date only", "2026-02-10", "2026-02-10 00:00:00", true},
		{"registrar", "10-Feb-2026", "2026-02-10 00:00:00", true},
		{"cert notAfter", "Oct 24 22:14:28 2025 GMT", "2025-10-24 22:14:28", true},
		{"garbage", "not a date", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLooseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, formatUTC(got))
			}
		})
	}
}

func rdapServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/domain/"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestDomainExpiry(t *testing.T) {
	srv := rdapServer(t, `{"events": [
		{"eventAction": "registration", "eventDate": "2010-01-01T00:00:00Z"},
		{"eventAction": "expiration", "eventDate": "2026-02-10T00:00:00Z"}
	]}`, http.StatusOK)
	defer srv.Close()

	c := &Checker{RDAPBase: srv.URL}
	assert.Equal(t, "2026-02-10 00:00:00", c.DomainExpiry(context.Background(), "example.com"))
}

func TestDomainExpiryAlternateActions(t *testing.T) {
	for _, action := range []string{"expires", "expiry"} {
		t.Run(action, func(t *testing.T) {
			srv := rdapServer(t, fmt.Sprintf(
				`{"events": [{"eventAction": %q, "eventDate": "2026-02-10T00:00:00Z"}]}`, action,
			), http.StatusOK)
			defer srv.Close()

			c := &Checker{RDAPBase: srv.URL}
			assert.Equal(t, "2026-02-10 00:00:00", c.DomainExpiry(context.Background(), "example.com"))
		})
	}
}

func TestDomainExpiryNoEvent(t *testing.T) {
	srv := rdapServer(t, `{"events": []}`, http.StatusOK)
	defer srv.Close()

	c := &Checker{RDAPBase: srv.URL}
	assert.Equal(t, "WHOIS error: RDAP had no expiration event", c.DomainExpiry(context.Background(), "example.com"))
}

func TestDomainExpiryHTTPFailure(t *testing.T) {
	srv := rdapServer(t, `not found`, http.StatusNotFound)
	defer srv.Close()

	c := &Checker{RDAPBase: srv.URL}
	got := c.DomainExpiry(context.Background(), "example.com")
	assert.True(t, strings.HasPrefix(got, "WHOIS error:"), got)
}

func TestSSLExpiryAgainstTestServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// The test server's certificate is self-signed, so the handshake
	// must fail verification and surface as an SSL error string.
	host := strings.TrimPrefix(srv.URL, "https://")
	c := &Checker{DialTimeout: 2 * time.Second}
	res := c.SSLExpiry(strings.Split(host, ":")[0])

	assert.False(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Error, "SSL error:"), res.Error)
}

func TestCollectCombinesProbes(t *testing.T) {
	srv := rdapServer(t, `{"events": [{"eventAction": "expiration", "eventDate": "2026-02-10T00:00:00Z"}]}`, http.StatusOK)
	defer srv.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &Checker{
		RDAPBase:    srv.URL,
		DialTimeout: time.Second,
		Now:         func() time.Time { return now },
	}
	report := c.Collect(context.Background(), "closed.invalid")

	assert.Equal(t, "closed.invalid", report.Domain)
	assert.Equal(t, "2026-01-01 12:00:00", report.CheckedAt)
	assert.Equal(t, true, report.Whois["ok"])
	assert.Equal(t, "2026-02-10 00:00:00", report.Whois["expires_at"])
	assert.Equal(t, false, report.SSL["ok"])
	assert.False(t, report.OK, "ssl failure must fail the combined report")
}

func TestHealthcheckOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>Welcome to My Site</html>")
	}))
	defer srv.Close()

	h := &Healthchecker{}
	result := h.Check(context.Background(), srv.URL, "Welcome", false, "")

	assert.Equal(t, true, result["ok"])
	assert.Equal(t, http.StatusOK, result["status"])
	assert.Equal(t, true, result["keyword_present"])
}

func TestHealthcheckKeywordMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance mode</html>")
	}))
	defer srv.Close()

	h := &Healthchecker{}
	result := h.Check(context.Background(), srv.URL, "Welcome", false, "")

	assert.Equal(t, false, result["ok"])
	assert.Equal(t, false, result["keyword_present"])
}

func TestHealthcheckNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := &Healthchecker{}
	result := h.Check(context.Background(), srv.URL, "", false, "")

	assert.Equal(t, false, result["ok"])
	assert.Equal(t, http.StatusBadGateway, result["status"])
}

func TestHealthcheckBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 5000)+"NEEDLE")
	}))
	defer srv.Close()

	h := &Healthchecker{}
	result := h.Check(context.Background(), srv.URL, "NEEDLE", false, "")

	// The keyword sits beyond the 2000-byte preview.
	assert.Equal(t, false, result["keyword_present"])
}

func TestScreenshotToolLadder(t *testing.T) {
	var invoked []string
	h := &Healthchecker{
		LookPath: func(name string) (string, error) {
			if name == "google-chrome-stable" {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		RunCommand: func(ctx context.Context, name string, args ...string) error {
			invoked = append(invoked, name)
			return nil
		},
	}

	shot := h.Screenshot(context.Background(), "https://example.com", t.TempDir()+"/site.png")

	require.Equal(t, true, shot["ok"])
	assert.Equal(t, "google-chrome-stable", shot["tool"])
	assert.Equal(t, []string{"google-chrome-stable"}, invoked)
}

func TestScreenshotPrefersWkhtmltoimage(t *testing.T) {
	h := &Healthchecker{
		LookPath:   func(name string) (string, error) { return "/usr/bin/" + name, nil },
		RunCommand: func(ctx context.Context, name string, args ...string) error { return nil },
	}

	shot := h.Screenshot(context.Background(), "https://example.com", t.TempDir()+"/site.png")

	assert.Equal(t, "wkhtmltoimage", shot["tool"])
}

func TestScreenshotNoToolFound(t *testing.T) {
	h := &Healthchecker{
		LookPath: func(name string) (string, error) { return "", errors.New("not found") },
	}

	shot := h.Screenshot(context.Background(), "https://example.com", t.TempDir()+"/site.png")

	assert.Equal(t, false, shot["ok"])
	assert.Contains(t, shot["error"], "no screenshot tool")
}
