package gateway

import (
	"net"
	"net/http"
	"strings"
)

// priorityHeaders lists the client-IP headers checked in order before
// falling back to the raw transport peer.
var priorityHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
}

// ExtractIP chooses one source IP from request headers in priority
// order, skipping private/loopback addresses so a misconfigured proxy
// in front of the gateway can't make every request look local.
func ExtractIP(r *http.Request) net.IP {
	for _, h := range priorityHeaders {
		if v := r.Header.Get(h); v != "" {
			if ip := parsePublic(v); ip != nil {
				return ip
			}
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := parsePublic(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}

	for _, h := range []string{"X-Envoy-External-Address", "X-Zeabur-Client-IP"} {
		if v := r.Header.Get(h); v != "" {
			if ip := parsePublic(v); ip != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return normalize(ip)
	}
	return net.IPv4zero
}

func parsePublic(raw string) net.IP {
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil
	}
	ip = normalize(ip)
	if isPrivate(ip) {
		return nil
	}
	return ip
}

func normalize(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	v4 := ip.To4()
	if v4 == nil {
		return ip.IsPrivate()
	}
	switch {
	case v4[0] == 10:
		return true
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return true
	case v4[0] == 192 && v4[1] == 168:
		return true
	case v4[0] == 127:
		return true
	}
	return false
}
