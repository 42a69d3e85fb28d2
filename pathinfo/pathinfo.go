// Package pathinfo derives the lookup path and language of an inbound request.
package pathinfo

import (
	"net"
	"net/http"
	"path"
	"strings"

	"golang.org/x/text/language"
)

// Options configures how languages are detected.
type Options struct {
	// Languages that may appear as the first path segment, e.g. "is", "en".
	Languages []string
	// DefaultLanguage is used when nothing else decides the language.
	// Paths in the default language carry no prefix in PrefixedPath.
	DefaultLanguage string
	// Negotiate enables Accept-Language negotiation for requests without a language prefix.
	Negotiate bool
}

// PathInfo is the per request path context.
type PathInfo struct {
	normalized  string
	lang        string
	defaultLang string
	host        string
	fullURI     string
}

// New resolves the path context of r.
func New(r *http.Request, opts Options) PathInfo {
	p := cleanPath(r.URL.Path)
	lang := ""
	if seg, rest := firstSegment(p); seg != "" && contains(opts.Languages, seg) {
		lang = seg
		p = rest
	}
	if lang == "" && opts.Negotiate {
		lang = negotiate(r.Header.Get("Accept-Language"), opts)
	}
	if lang == "" {
		lang = opts.DefaultLanguage
	}
	return PathInfo{
		normalized:  p,
		lang:        lang,
		defaultLang: opts.DefaultLanguage,
		host:        requestHost(r),
		fullURI:     scheme(r) + "://" + r.Host + r.URL.RequestURI(),
	}
}

// NormalizedPath is the cleaned request path without language prefix.
func (p PathInfo) NormalizedPath() string {
	return p.normalized
}

// Language is the resolved language code.
func (p PathInfo) Language() string {
	return p.lang
}

// PrefixedPath is the normalized path with a language prefix for non-default
// languages, identifying one rendered page.
func (p PathInfo) PrefixedPath() string {
	return PrefixPath(p.normalized, p.lang, p.defaultLang)
}

// Host is the request host without port.
func (p PathInfo) Host() string {
	return p.host
}

// FullURI is the absolute URI of the request, including query.
func (p PathInfo) FullURI() string {
	return p.fullURI
}

// ReplacePrefix swaps the from prefix of the normalized path for to.
// It returns false when the path does not start with from.
func (p PathInfo) ReplacePrefix(from, to string) (string, bool) {
	if !p.HasPrefix(from) {
		return "", false
	}
	return to + strings.TrimPrefix(p.normalized, from), true
}

// HasPrefix tells if the normalized path starts with prefix.
func (p PathInfo) HasPrefix(prefix string) bool {
	return strings.HasPrefix(p.normalized, prefix)
}

// PrefixPath adds the /lang prefix to p unless lang is the default language.
func PrefixPath(p, lang, defaultLang string) string {
	if lang == "" || lang == defaultLang {
		return p
	}
	if p == "/" {
		return "/" + lang
	}
	return "/" + lang + p
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func firstSegment(p string) (string, string) {
	trimmed := strings.TrimPrefix(p, "/")
	seg, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return seg, "/"
	}
	return seg, "/" + rest
}

func negotiate(acceptLanguage string, opts Options) string {
	if acceptLanguage == "" || len(opts.Languages) == 0 {
		return ""
	}
	desired, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(desired) == 0 {
		return ""
	}
	supported := make([]language.Tag, 0, len(opts.Languages)+1)
	// the first supported tag is the matcher fallback
	if opts.DefaultLanguage != "" {
		supported = append(supported, language.Make(opts.DefaultLanguage))
	}
	for _, l := range opts.Languages {
		supported = append(supported, language.Make(l))
	}
	_, index, confidence := language.NewMatcher(supported).Match(desired...)
	if confidence == language.No {
		return ""
	}
	base, _ := supported[index].Base()
	return base.String()
}

func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}

func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
