package analyses

import (
	"net/url"
	"strings"
)

// DefaultMarketplaceDomains are accepted when no domains are configured.
var DefaultMarketplaceDomains = []string{"ifood.com.br", "marketplace.example"}

// ValidateLink checks that raw points at an establishment page on one of the
// marketplace domains and returns the normalized link.
func ValidateLink(raw string, domains []string) (string, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return "", NewValidationError("link", "required")
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", NewValidationError("link", "malformed")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", NewValidationError("link", "must be http or https")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", NewValidationError("link", "missing host")
	}
	if len(domains) == 0 {
		domains = DefaultMarketplaceDomains
	}
	if !hostMatches(host, domains) {
		return "", NewValidationError("link", "unsupported marketplace")
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", NewValidationError("link", "must point at an establishment page")
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
