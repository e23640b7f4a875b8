package proxies

import (
	"strconv"
	"strings"
)

// Proxy is a validated host:port endpoint.
type Proxy struct {
	Host string
	Port int
}

func (p Proxy) String() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// Parse validates a single host:port token. The token must contain exactly
// one colon, a non-empty host and an all digit port in [1, 65535].
func Parse(token string) (Proxy, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Proxy{}, false
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return Proxy{}, false
	}

	host, portStr := parts[0], parts[1]
	if host == "" || portStr == "" {
		return Proxy{}, false
	}

	for _, r := range portStr {
		if r < '0' || r > '9' {
			return Proxy{}, false
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Proxy{}, false
	}

	return Proxy{Host: host, Port: port}, true
}

// Extract returns every valid proxy token of text in input order. Invalid
// tokens are dropped silently.
func Extract(text string) []string {
	fields := strings.Fields(text)
	proxies := make([]string, 0, len(fields))
	for _, field := range fields {
		if p, ok := Parse(field); ok {
			proxies = append(proxies, p.String())
		}
	}
	return proxies
}
