package security

import (
	"sort"
	"strings"
)

const mask = "********"

// Redactor masks known secret values (API keys) in log output.
type Redactor struct {
	Secrets []string
}

// NewRedactor collects the non-empty, distinct secret values it is given.
func NewRedactor(values ...string) *Redactor {
	var secretValues []string
	seen := make(map[string]struct{}, len(values))
	for _, val := range values {
		if val == "" {
			continue
		}
		if _, dup := seen[val]; dup {
			continue
		}
		seen[val] = struct{}{}
		secretValues = append(secretValues, val)
	}
	return &Redactor{
		Secrets: secretValues,
	}
}

func (r *Redactor) Redact(s string) string {
	if r == nil || len(r.Secrets) == 0 {
		return s
	}

	// Longer secrets go first so a secret that contains another is masked whole
	secrets := make([]string, len(r.Secrets))
	copy(secrets, r.Secrets)
	sort.Slice(secrets, func(i, j int) bool {
		return len(secrets[i]) > len(secrets[j])
	})

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}
