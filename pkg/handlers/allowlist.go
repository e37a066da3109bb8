package handlers

import "strings"

// HostAllowList matches a host exactly or as a subdomain of an entry.
// "x.com" allows "x.com" and "video.x.com" but not "notx.com".
type HostAllowList []string

func NewHostAllowList(hosts []string) HostAllowList {
	list := make(HostAllowList, 0, len(hosts))
	for _, h := range hosts {
		h = normalizeHost(h)
		if h != "" {
			list = append(list, h)
		}
	}
	return list
}

// Allows reports whether host (without port) is on the list
func (l HostAllowList) Allows(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, allowed := range l {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
