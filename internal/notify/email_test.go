package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@example.co.uk",
		"tagged+scan@example.org",
		// Newer TLDs must pass; the classic helper regexes choke on these.
		"ops@widgets.services",
		"alerts@research.technology",
	}
	for _, email := range valid {
		assert.True(t, ValidEmail(email), email)
	}

	invalid := []string{
		"",
		"plainaddress",
		"two@@example.com",
		"a@b@c.example.com",
		"@example.com",
		"user@",
		"user@nodot",
		".leadingdot@example.com",
		"trailingdot.@example.com",
		"double..dot@example.com",
		"user@-example.com",
		"user@example.com.",
		"user@example.c",
		"user@example.1234",
	}
	for _, email := range invalid {
		assert.False(t, ValidEmail(email), email)
	}
}
