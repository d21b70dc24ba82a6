package gerbang

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc derives a partitioning key from a request. It is used by the rate
// limiter (default: client address) and the circuit breaker (default:
// method + path). Implementations must be safe for concurrent use and must
// not retain the request.
type KeyFunc func(req *http.Request) string

// FailurePredicate decides whether a downstream outcome counts as a failure
// for the circuit breaker. status is zero when the downstream call produced
// no response at all.
type FailurePredicate func(status int, err error) bool

// shardCount is the number of lock shards used by the keyed components.
// Sixteen shards keeps unrelated keys off the same mutex without bloating
// per-pipeline memory.
const shardCount = 16

// defaultExcludePaths are operational endpoints that admission stages skip
// unless the caller overrides the exclusion list.
var defaultExcludePaths = []string{"/health", "/healthz", "/ready", "/metrics"}

// ClientAddrKeyFunc keys requests by the client address (host part of
// RemoteAddr). This is the rate limiter default.
func ClientAddrKeyFunc(req *http.Request) string {
	return clientAddr(req)
}

// TargetKeyFunc keys requests by method and normalized path. This is the
// circuit breaker default, giving one circuit per protected endpoint.
func TargetKeyFunc(req *http.Request) string {
	return req.Method + ":" + normalizePath(req.URL.Path)
}

// GlobalKeyFunc maps every request to a single key, collapsing a keyed
// component into one global instance.
func GlobalKeyFunc(*http.Request) string {
	return "global"
}

// clientAddr extracts the host portion of the request's remote address.
func clientAddr(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// normalizePath strips the trailing slash so "/orders" and "/orders/" map to
// the same target. The root path is left untouched.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimRight(path, "/")
	}
	return path
}

// pathSet is a membership set for exclusion lists.
type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	if len(paths) == 0 {
		return nil
	}
	s := make(pathSet, len(paths))
	for _, p := range paths {
		s[normalizePath(p)] = struct{}{}
	}
	return s
}

func (s pathSet) contains(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s[normalizePath(path)]
	return ok
}

// methodSet is a membership set for HTTP method filters.
type methodSet map[string]struct{}

func newMethodSet(methods []string) methodSet {
	if len(methods) == 0 {
		return nil
	}
	s := make(methodSet, len(methods))
	for _, m := range methods {
		s[strings.ToUpper(m)] = struct{}{}
	}
	return s
}

func (s methodSet) contains(method string) bool {
	if s == nil {
		return false
	}
	_, ok := s[strings.ToUpper(method)]
	return ok
}

func newStatusSet(statuses []int) map[int]struct{} {
	if len(statuses) == 0 {
		return nil
	}
	s := make(map[int]struct{}, len(statuses))
	for _, code := range statuses {
		s[code] = struct{}{}
	}
	return s
}
