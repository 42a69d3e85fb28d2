package rfc9111

import "net/http"

// §  4.4.  Invalidating Stored Responses
// §
// §     Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT,
// §     POST, or DELETE have the potential for changing state on the origin
// §     server, intervening caches are required to invalidate stored
// §     responses to keep their contents up to date.
// §
// §     A "non-error response" is one with a 2xx (Successful) or 3xx
// §     (Redirection) status code.

// UnsafeRequest tells if the request method may change state on the origin.
// Methods of unknown safety are unsafe.
func UnsafeRequest(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// NonErrorStatus tells if a response with this status may trigger invalidation.
func NonErrorStatus(status int) bool {
	return status >= 200 && status < 400
}
