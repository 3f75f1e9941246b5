package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`(?i)\bhttps?://[^\s<>]+`)

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// NormalizeHost returns the lowercase ASCII host of raw, without a leading "www.".
func NormalizeHost(raw string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(raw), "http://") && !strings.HasPrefix(strings.ToLower(raw), "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.TrimPrefix(host, "www."), nil
}

// DomainSet normalizes a list of domains for BlockedDomain.
func DomainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		host, err := NormalizeHost(strings.TrimSpace(domain))
		if err != nil || host == "" {
			continue
		}
		set[host] = struct{}{}
	}
	return set
}

// BlockedDomain reports the first link in content whose host or a parent domain is in blocked.
func BlockedDomain(content string, blocked map[string]struct{}) (string, bool) {
	if len(blocked) == 0 {
		return "", false
	}
	for _, raw := range ExtractURLs(content) {
		host, err := NormalizeHost(raw)
		if err != nil {
			continue
		}
		for candidate := host; candidate != ""; {
			if _, ok := blocked[candidate]; ok {
				return candidate, true
			}
			idx := strings.IndexByte(candidate, '.')
			if idx < 0 {
				break
			}
			candidate = candidate[idx+1:]
		}
	}
	return "", false
}
