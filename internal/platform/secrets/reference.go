package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

// parseReference accepts secret://name[?version=N&project=P] and the legacy sm:// scheme.
func parseReference(ref string) (reference, error) {
	ref = normalizeScheme(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	u.RawQuery = ""
	u.Fragment = ""
	return reference{
		canonical: u.String(),
		secret:    name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func normalizeScheme(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func maskReference(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

// pinKey normalises a version pin key to "[env:]secret://name". Bare names and sm:// are
// accepted.
func pinKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var env string
	if idx := strings.Index(raw, ":"); idx > 0 && !strings.HasPrefix(raw[idx:], "://") {
		env = strings.ToLower(strings.TrimSpace(raw[:idx])) + ":"
		raw = strings.TrimSpace(raw[idx+1:])
	}
	if !strings.Contains(raw, "://") {
		raw = "secret://" + raw
	}
	ref, err := parseReference(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: version pin %q: %w", raw, err)
	}
	return env + ref.canonical, nil
}
