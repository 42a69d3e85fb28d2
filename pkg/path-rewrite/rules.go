package pathrewrite

import (
	"github.com/rs/zerolog/log"
)

// PrefixMatcher is the part of a request path context rules work on.
type PrefixMatcher interface {
	NormalizedPath() string
	HasPrefix(prefix string) bool
	ReplacePrefix(from, to string) (string, bool)
}

type Rules []Rule

// Rule maps public paths under Prefix to stored aliases under Replace.
// A rule is skipped for paths under Unless.
type Rule struct {
	Prefix  string `yaml:"prefix" mapstructure:"prefix"`
	Replace string `yaml:"replace" mapstructure:"replace"`
	Unless  string `yaml:"unless" mapstructure:"unless"`
}

// DefaultRules reconcile the public section paths with the aliases the content
// is stored under.
var DefaultRules = Rules{
	{Prefix: "/events/", Replace: "/"},
	{Prefix: "/news/", Replace: "/export-main-navigation/", Unless: "/news/details/"},
}

// Resolve returns the path produced by the first matching rule,
// or the normalized path when no rule matches.
func (r Rules) Resolve(m PrefixMatcher) string {
	if rule := r.find(m); rule != nil {
		if rewritten, ok := m.ReplacePrefix(rule.Prefix, rule.Replace); ok {
			log.Trace().Msgf("Rewrote %s with rule %+v", m.NormalizedPath(), *rule)
			return rewritten
		}
	}
	return m.NormalizedPath()
}

func (r Rules) find(m PrefixMatcher) *Rule {
	for i := range r {
		rule := r[i]
		if rule.Prefix == "" {
			continue
		}
		if rule.Unless != "" && m.HasPrefix(rule.Unless) {
			continue
		}
		if !m.HasPrefix(rule.Prefix) {
			continue
		}
		return &rule
	}
	return nil
}
