// Package headrewrite corrects pre-rendered head markup for the request it is served on.
package headrewrite

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// absoluteURL matches the scheme, host and leading path of absolute http(s) URLs.
var absoluteURL = regexp.MustCompile(`(?i)(https?://)[^:/\s]+((/\w+)*/)`)

// RewriteHost replaces the host of every absolute URL in fragment with host.
// URLs with an explicit port are left alone.
func RewriteHost(fragment, host string) string {
	if host == "" {
		return fragment
	}
	return absoluteURL.ReplaceAllStringFunc(fragment, func(match string) string {
		sub := absoluteURL.FindStringSubmatch(match)
		return sub[1] + host + sub[2]
	})
}

// SetCanonical points the href of the first rel=canonical link in fragment at uri.
// The fragment is returned unchanged when it has no canonical link.
func SetCanonical(fragment, uri string) string {
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(fragment))
	found := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return fragment
			}
			break
		}
		raw := z.Raw()
		if !found && (tt == html.StartTagToken || tt == html.SelfClosingTagToken) {
			token := z.Token()
			if token.Data == "link" && isCanonical(token) {
				found = true
				setAttr(&token, "href", uri)
				out.WriteString(token.String())
				continue
			}
		}
		out.Write(raw)
	}
	if !found {
		return fragment
	}
	return out.String()
}

func isCanonical(t html.Token) bool {
	for _, a := range t.Attr {
		if a.Key != "rel" {
			continue
		}
		for _, rel := range strings.Fields(a.Val) {
			if strings.EqualFold(rel, "canonical") {
				return true
			}
		}
	}
	return false
}

func setAttr(t *html.Token, key, val string) {
	for i := range t.Attr {
		if t.Attr[i].Key == key {
			t.Attr[i].Val = val
			return
		}
	}
	t.Attr = append(t.Attr, html.Attribute{Key: key, Val: val})
}

// Replacement is a literal substitution applied to the whole fragment.
type Replacement struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// DefaultReplacements map the navigation export alias back to its public section.
var DefaultReplacements = []Replacement{
	{From: "/export-main-navigation/", To: "/news/"},
}

// Replace applies every replacement in order.
func Replace(fragment string, replacements []Replacement) string {
	for _, r := range replacements {
		if r.From == "" {
			continue
		}
		fragment = strings.ReplaceAll(fragment, r.From, r.To)
	}
	return fragment
}
