package remote

import (
	"fmt"
	"os"

	"github.com/wpsteward/steward/pkg/types"
)

// MaterializeCredential resolves the site's SSH credential to a key file
// path usable by the dialer. Inline PEM material is written to a private
// temp file; the returned cleanup must be called once the session is
// finished so the material never outlives the task.
func MaterializeCredential(site *types.SiteRecord) (keyPath string, cleanup func(), err error) {
	noop := func() {}

	if site.PrivateKeyPEM != "" {
		f, err := os.CreateTemp("", "steward-key-*")
		if err != nil {
			return "", noop, fmt.Errorf("materializing key: %w", err)
		}
		path := f.Name()
		remove := func() { _ = os.Remove(path) }

		if err := f.Chmod(0600); err != nil {
			f.Close()
			remove()
			return "", noop, fmt.Errorf("materializing key: %w", err)
		}
		if _, err := f.WriteString(site.PrivateKeyPEM); err != nil {
			f.Close()
			remove()
			return "", noop, fmt.Errorf("materializing key: %w", err)
		}
		if err := f.Close(); err != nil {
			remove()
			return "", noop, fmt.Errorf("materializing key: %w", err)
		}
		return path, remove, nil
	}

	if site.KeyPath != "" {
		return site.KeyPath, noop, nil
	}

	// Password-only credential.
	return "", noop, nil
}
