package sanitize

import (
	"net"
	"net/url"
	"strings"
)

// urlProhibitedFields never legitimately contain a URL. Any http(s) URL in
// them is treated as an exfiltration attempt and stripped.
var urlProhibitedFields = map[string]bool{
	"skill_name":      true,
	"industry":        true,
	"sub_industry":    true,
	"job_function":    true,
	"seniority_level": true,
	"job_title":       true,
	"company_name":    true,
	"department":      true,
}

// urlAllowedFields may contain URLs, which are individually screened against
// the suspicious-host rules.
var urlAllowedFields = map[string]bool{
	"application_link":  true,
	"application_email": true,
	"company_website":   true,
}

// suspiciousHostSuffixes cover tunneling services and dynamic DNS providers
// commonly used for data exfiltration.
var suspiciousHostSuffixes = []string{
	".ngrok.io",
	".ngrok-free.app",
	".trycloudflare.com",
	".serveo.net",
	".localtunnel.me",
	".loca.lt",
	".duckdns.org",
	".ddns.net",
	".dyndns.org",
	".no-ip.org",
	".hopto.org",
}

// suspiciousURL reports whether raw points at a host no legitimate job
// posting would use: raw IPs, localhost, RFC1918 ranges, tunnels, or
// dynamic DNS.
func suspiciousURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return true
		}
		// Any raw-IP application link is suspect even when public.
		return true
	}

	for _, suffix := range suspiciousHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
