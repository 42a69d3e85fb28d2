package pathrewrite

import (
	"net/http/httptest"
	"testing"

	"github.com/always-cache/ui-site/pathinfo"
)

func matcher(path string) PrefixMatcher {
	return pathinfo.New(httptest.NewRequest("GET", path, nil), pathinfo.Options{})
}

func TestRuleFinder(t *testing.T) {
	rules := Rules{
		Rule{Prefix: "/wp-", Replace: "/legacy/"},
		Rule{Prefix: "/"},
	}

	if rule := rules.find(matcher("/")); rule == nil || rule.Prefix != "/" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(matcher("/wp-admin")); rule == nil || rule.Prefix != "/wp-" {
		t.Fatal("Incorrect rule")
	}
	if rule := (Rules{{Prefix: "/wp-"}}).find(matcher("/about")); rule != nil {
		t.Fatal("Incorrect rule")
	}
}

func TestDefaultRules(t *testing.T) {
	cases := map[string]string{
		"/events/gala":         "/gala",
		"/news/widget":         "/export-main-navigation/widget",
		"/news/details/widget": "/news/details/widget",
		"/news":                "/news",
		"/about":               "/about",
		"/":                    "/",
	}
	for path, want := range cases {
		if got := DefaultRules.Resolve(matcher(path)); got != want {
			t.Fatalf("Resolve(%s) is %s, expected %s", path, got, want)
		}
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	rules := Rules{
		{Prefix: "/a/", Replace: "/first/"},
		{Prefix: "/a/", Replace: "/second/"},
	}
	if got := rules.Resolve(matcher("/a/b")); got != "/first/b" {
		t.Fatalf("Resolve is %s", got)
	}
}

func TestUnlessSkipsOnlyThatRule(t *testing.T) {
	rules := Rules{
		{Prefix: "/news/", Replace: "/x/", Unless: "/news/details/"},
		{Prefix: "/news/details/", Replace: "/d/"},
	}
	if got := rules.Resolve(matcher("/news/details/a")); got != "/d/a" {
		t.Fatalf("Resolve is %s", got)
	}
}
