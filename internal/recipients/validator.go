package recipients

import (
	"net/mail"
	"strings"
)

const maxAddressLength = 254

// Partition is the result of validating a candidate list. Both slices keep the
// input order and duplicates are kept as separate entries.
type Partition struct {
	Valid   []string
	Invalid []string
}

// Validate splits candidates into syntactically valid and invalid addresses.
// Every candidate is trimmed and lands in exactly one of the two slices.
func Validate(candidates []string) Partition {
	p := Partition{
		Valid:   make([]string, 0, len(candidates)),
		Invalid: make([]string, 0),
	}
	for _, c := range candidates {
		trimmed := strings.TrimSpace(c)
		if IsValidAddress(trimmed) {
			p.Valid = append(p.Valid, trimmed)
		} else {
			p.Invalid = append(p.Invalid, trimmed)
		}
	}
	return p
}

// IsValidAddress reports whether s is a bare RFC 5322 addr-spec with a
// dotted domain, e.g. "jane@example.com". Display names and angle brackets
// are rejected.
func IsValidAddress(s string) bool {
	if s == "" || len(s) > maxAddressLength || s != strings.TrimSpace(s) {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}

	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], s[at+1:]
	if local == "" || len(local) > 64 {
		return false
	}
	return isHostname(domain)
}

func isHostname(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r > 127) {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	return len(tld) >= 2 && strings.Trim(tld, "0123456789") != ""
}
