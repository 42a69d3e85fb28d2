// Package rfc9211 builds Cache-Status response header values.
package rfc9211

import "fmt"

// Name is the cache identifier used in Cache-Status values.
const Name = "UISite"

type Status string

const (
	Hit = "hit"
	Fwd = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdBypass = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdMethod = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss = "uri-miss"
)

// CacheStatus accumulates the outcome of one request.
type CacheStatus struct {
	status    Status
	fwdReason FwdReason
	stored    bool
}

func (cs *CacheStatus) Hit() {
	cs.status = Hit
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.status = Fwd
	cs.fwdReason = reason
}

// Stored marks that the forwarded response was stored.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

// IsHit tells if the response was served from cache.
func (cs *CacheStatus) IsHit() bool {
	return cs.status == Hit
}

// Legacy is the value of the X-Cache-Status header: HIT or MISS.
func (cs *CacheStatus) Legacy() string {
	if cs.IsHit() {
		return "HIT"
	}
	return "MISS"
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("%s; %s", Name, cs.status)
	if cs.status == Fwd && cs.fwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
	}
	if cs.stored {
		status += "; stored"
	}
	return status
}
