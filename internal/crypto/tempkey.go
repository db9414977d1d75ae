package crypto

import (
	"fmt"
	"os"
)

// WriteTransientKey writes operator-supplied PEM key text to a mode-0600
// temporary file so path-based loaders can read it. The returned cleanup
// overwrites the file contents before removing it; credentials never outlive
// the connection they were supplied for.
func WriteTransientKey(pemText string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "parlayquoter-*.pem")
	if err != nil {
		return "", nil, fmt.Errorf("crypto: creating transient key file: %w", err)
	}
	name := f.Name()

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(name)
		return "", nil, fmt.Errorf("crypto: restricting transient key file: %w", err)
	}
	if _, err := f.WriteString(pemText); err != nil {
		f.Close()
		os.Remove(name)
		return "", nil, fmt.Errorf("crypto: writing transient key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", nil, fmt.Errorf("crypto: closing transient key file: %w", err)
	}

	cleanup = func() {
		// Best-effort scrub before unlink.
		if blank := make([]byte, len(pemText)); len(blank) > 0 {
			_ = os.WriteFile(name, blank, 0o600)
		}
		_ = os.Remove(name)
	}
	return name, cleanup, nil
}
