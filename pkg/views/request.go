package views

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError rejects a request before admission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type RequestPolicy struct {
	MaxViews     int
	TargetDomain string
}

// ViewRequest is an admitted request. Build it with NewViewRequest.
type ViewRequest struct {
	targetURL      string
	requestedCount int
}

func (r ViewRequest) TargetURL() string {
	return r.targetURL
}

func (r ViewRequest) RequestedCount() int {
	return r.requestedCount
}

func NewViewRequest(policy RequestPolicy, rawURL string, count int) (ViewRequest, error) {
	if count < 1 || count > policy.MaxViews {
		return ViewRequest{}, &ValidationError{
			Field:  "count",
			Reason: fmt.Sprintf("must be between 1 and %d", policy.MaxViews),
		}
	}

	rawURL = strings.TrimSpace(rawURL)
	if !IsValidURL(rawURL, policy.TargetDomain) {
		return ViewRequest{}, &ValidationError{
			Field:  "url",
			Reason: fmt.Sprintf("must be an http(s) %s link with at least two path segments", policy.TargetDomain),
		}
	}

	return ViewRequest{targetURL: rawURL, requestedCount: count}, nil
}

// IsValidURL accepts http and https links whose host contains domain and
// whose path has at least two non-empty segments, e.g. /@user/123.
func IsValidURL(raw, domain string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, strings.ToLower(domain)) {
		return false
	}

	segments := 0
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments++
		}
	}
	return segments >= 2
}
