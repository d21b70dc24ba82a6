package gerbang

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a stable identity derived from a request's method, path,
// query parameters and body. Equal logical requests always yield equal
// fingerprints; collisions between distinct requests are an accepted risk of
// the 64-bit frame hash, not a correctness requirement.
type Fingerprint string

// FingerprintConfig configures fingerprint computation.
type FingerprintConfig struct {
	// IncludeClientAddr folds the client address into the fingerprint so
	// identical requests from different clients are treated as distinct.
	IncludeClientAddr bool
}

// Fingerprinter computes request fingerprints. It is stateless and safe for
// concurrent use.
type Fingerprinter struct {
	includeClientAddr bool
}

// NewFingerprinter creates a fingerprinter with the given configuration.
func NewFingerprinter(config FingerprintConfig) *Fingerprinter {
	return &Fingerprinter{
		includeClientAddr: config.IncludeClientAddr,
	}
}

// Compute derives the fingerprint for req. The request body, if any, is read
// fully, digested with SHA-256 and restored so the downstream handler sees it
// unchanged.
func (f *Fingerprinter) Compute(req *http.Request) (Fingerprint, error) {
	h := xxhash.New()
	_, _ = h.WriteString(req.Method)
	_, _ = h.WriteString("\n")
	_, _ = h.WriteString(normalizePath(req.URL.Path))
	_, _ = h.WriteString("\n")
	_, _ = h.WriteString(canonicalQuery(req))
	_, _ = h.WriteString("\n")

	if f.includeClientAddr {
		_, _ = h.WriteString(clientAddr(req))
		_, _ = h.WriteString("\n")
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return "", fmt.Errorf("gerbang: reading body for fingerprint: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		digest := sha256.Sum256(body)
		_, _ = h.Write(digest[:])
	}

	return Fingerprint(fmt.Sprintf("%016x", h.Sum64())), nil
}

// canonicalQuery renders the query string with parameters sorted by name,
// then by value, so parameter order never changes the fingerprint.
func canonicalQuery(req *http.Request) string {
	values := req.URL.Query()
	if len(values) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(values))
	for name, vals := range values {
		sorted := make([]string, len(vals))
		copy(sorted, vals)
		sort.Strings(sorted)
		for _, v := range sorted {
			pairs = append(pairs, name+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// shardIndex maps a fingerprint or key onto one of the lock shards.
func shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % shardCount)
}
