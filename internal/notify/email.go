package notify

import (
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	localPartRe = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)
	labelRe     = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	letterRe    = regexp.MustCompile(`[a-zA-Z]`)
)

// ValidEmail is a structural check on a notify target. Deliberately more
// permissive than classic mail-helper regexes about the TLD: anything the
// public suffix list knows is accepted, so .services, .technology and
// friends validate.
func ValidEmail(email string) bool {
	if email == "" || strings.Count(email, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(email, "@")

	if local == "" || len(local) > 64 || !localPartRe.MatchString(local) {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}

	if domain == "" || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || !labelRe.MatchString(label) {
			return false
		}
	}

	if _, icann := publicsuffix.PublicSuffix(strings.ToLower(domain)); icann {
		return true
	}
	// Unknown suffix: fall back to requiring a plausible TLD shape.
	tld := labels[len(labels)-1]
	return len(tld) >= 2 && letterRe.MatchString(tld)
}
