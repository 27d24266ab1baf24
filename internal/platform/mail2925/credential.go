package mail2925

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrConfig marks a missing or unusable credential. The service must not
	// start without one.
	ErrConfig = errors.New("mail2925: credential unavailable")

	// ErrAuth is returned when the provider rejected the token and the cookie
	// could not be exchanged for a new one.
	ErrAuth = errors.New("mail2925: cookie expired, unable to obtain a new token")
)

// LoadCredential reads the session cookie from path. Surrounding whitespace is
// dropped; an empty file is treated like a missing one.
func LoadCredential(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: no cookie file configured", ErrConfig)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	cookie := strings.TrimSpace(string(raw))
	if cookie == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrConfig, path)
	}
	return cookie, nil
}
