package uisite

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/pathinfo"
	headrewrite "github.com/always-cache/ui-site/pkg/head-rewrite"
)

// render builds the page for p from the shell and the stored head markup.
func (s *Site) render(ctx context.Context, log zerolog.Logger, p pathinfo.PathInfo) (string, error) {
	doc, err := s.shells.New(ctx, s.templatePath)
	if err != nil {
		return "", err
	}

	alias := s.rules.Resolve(p)
	rec, err := s.store.First(ctx, metadata.Filter{
		metadata.ColumnAlias:    alias,
		metadata.ColumnLangcode: p.Language(),
	}, metadata.FindOptions{})
	var corrupt *metadata.CorruptRecordError
	if errors.As(err, &corrupt) {
		log.Warn().Err(err).Msg("Ignoring corrupt metadata")
		rec, err = nil, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case rec != nil:
		if rec.Payload.Metatags != "" {
			doc.AppendToHead(s.correctHead(rec.Payload.Metatags, p))
		}
	case p.NormalizedPath() == "/":
		s.addFrontPage(doc, p.Language())
	default:
		log.Trace().Str("alias", alias).Msg("No metadata")
	}
	return doc.Render(), nil
}

// correctHead adapts head markup rendered at population time to the live request.
func (s *Site) correctHead(metatags string, p pathinfo.PathInfo) string {
	metatags = headrewrite.RewriteHost(metatags, p.Host())
	metatags = headrewrite.SetCanonical(metatags, p.FullURI())
	return headrewrite.Replace(metatags, s.rewrites)
}
