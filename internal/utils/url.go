package utils

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrURLInvalid = errors.New("`url` is not valid")

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLInvalid, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrURLInvalid)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrURLInvalid)
	}
	return nil
}

// IsLocalURL reports whether raw points at the local machine.
func IsLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "0.0.0.0" || strings.HasPrefix(host, "127.")
}
