package unifi

import (
	"fmt"
	"net/http"
	"strings"
)

// Request describes a single controller API call: an HTTP method, a
// site-relative path, and an optional JSON body. Paths follow the
// controller's conventions:
//
//   - "/rest/..."          REST collections (networkconf, wlanconf, user)
//   - "/cmd/...", "/get/...", "/set/...", "/stat/..."  legacy endpoints
//   - "/v2/..."            V2 JSON endpoints (firewall-policies, ...)
//
// The session layer turns the relative path into a full URL for the
// controller variant in use (UniFi OS proxy prefix vs legacy :8443).
type Request struct {
	Method string
	Path   string
	Body   any
}

// Get builds a GET request for path.
func Get(path string) Request {
	return Request{Method: http.MethodGet, Path: path}
}

// Post builds a POST request for path with body.
func Post(path string, body any) Request {
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// Put builds a PUT request for path with body.
func Put(path string, body any) Request {
	return Request{Method: http.MethodPut, Path: path, Body: body}
}

// Delete builds a DELETE request for path.
func Delete(path string) Request {
	return Request{Method: http.MethodDelete, Path: path}
}

// IsMutation reports whether the request changes controller state.
// Used to decide CSRF header attachment and cache invalidation.
func (r Request) IsMutation() bool {
	return r.Method != http.MethodGet
}

// urlPath resolves the site-relative path against the controller
// variant. UniFi OS appliances proxy the network application under
// /proxy/network; standalone software controllers serve it at the root.
// V2 paths are scoped per site under /v2/api/site/{site}, everything
// else under /api/s/{site}.
func (r Request) urlPath(site string, legacy bool) (string, error) {
	if !strings.HasPrefix(r.Path, "/") {
		return "", fmt.Errorf("request path must start with /: %q", r.Path)
	}

	prefix := "/proxy/network"
	if legacy {
		prefix = ""
	}

	if strings.HasPrefix(r.Path, "/v2/") {
		return fmt.Sprintf("%s/v2/api/site/%s%s", prefix, site, strings.TrimPrefix(r.Path, "/v2")), nil
	}
	return fmt.Sprintf("%s/api/s/%s%s", prefix, site, r.Path), nil
}
