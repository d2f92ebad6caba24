package utils

import (
	"net/url"
	"strings"
)

// MaskURL hides the password of a URL (DSNs, broker URLs) before it is logged.
// Unparseable input is returned with everything after the scheme masked.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.Index(raw, "://"); i >= 0 {
			return raw[:i+3] + "***"
		}
		return "***"
	}
	if u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// NormalizeSymbols trims and uppercases codes, dropping blanks and duplicates.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		code := strings.ToUpper(strings.TrimSpace(s))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
