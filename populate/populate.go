// Package populate rebuilds the metadata store from exported content.
package populate

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/shell"
)

// Content is the exported head markup of the site.
type Content struct {
	// Front page head tags per language.
	FrontPage map[string][]shell.Tag `yaml:"front_page"`
	Items     []Item                 `yaml:"items"`
}

// Item is one content item with its translations.
type Item struct {
	InternalPath string                 `yaml:"internal_path"`
	Type         metadata.RecordType    `yaml:"type"`
	Translations map[string]Translation `yaml:"translations"`
}

type Translation struct {
	// Public path of the translation.
	Alias string `yaml:"alias"`
	// Absolute URL, used for the hreflang alternates of every translation.
	URL  string      `yaml:"url"`
	Head []shell.Tag `yaml:"head"`
}

// ContentSource provides the content to populate from.
type ContentSource interface {
	Content(ctx context.Context) (*Content, error)
}

// YAMLSource reads content from a YAML file.
type YAMLSource struct {
	Path string
}

func (s YAMLSource) Content(ctx context.Context) (*Content, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var c Content
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return &c, nil
}

// Store is the part of the metadata store the population job writes to.
type Store interface {
	DeleteAll(ctx context.Context, filter metadata.Filter) (int64, error)
	Upsert(ctx context.Context, r metadata.Record) error
}

type Config struct {
	Store  Store
	Source ContentSource
	// Languages to populate, in order.
	Languages []string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Result summarizes one run.
type Result struct {
	Deleted    int64
	FrontPages int
	Items      int
	Skipped    int
}

// Populator clears the store and fills it again. Runs must not overlap.
type Populator struct {
	store     Store
	source    ContentSource
	languages []string
	log       zerolog.Logger
}

func New(config Config) *Populator {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	return &Populator{
		store:     config.Store,
		source:    config.Source,
		languages: config.Languages,
		log:       logger.With().Str("component", "populate").Logger(),
	}
}

// Run replaces the store contents. The source is read before anything is deleted.
func (p *Populator) Run(ctx context.Context) (Result, error) {
	var res Result
	content, err := p.source.Content(ctx)
	if err != nil {
		return res, fmt.Errorf("read content: %w", err)
	}

	if res.Deleted, err = p.store.DeleteAll(ctx, nil); err != nil {
		return res, err
	}
	p.log.Debug().Int64("deleted", res.Deleted).Msg("Cleared metadata")

	for _, lang := range p.languages {
		metatags := shell.GetTags(content.FrontPage[lang]...)
		if metatags == "" {
			continue
		}
		err := p.store.Upsert(ctx, metadata.Record{
			Langcode:     lang,
			Alias:        "/",
			InternalPath: "/",
			Type:         metadata.TypeFrontPage,
			Payload:      metadata.Payload{Metatags: metatags},
			UIPath:       "/",
		})
		if err != nil {
			return res, err
		}
		res.FrontPages++
	}

	for _, item := range content.Items {
		alternates := p.alternates(item)
		for _, lang := range p.languages {
			tr, ok := item.Translations[lang]
			if !ok {
				continue
			}
			metatags := shell.GetTags(tr.Head...) + alternates
			if metatags == "" {
				p.log.Trace().Str("item", item.InternalPath).Str("lang", lang).Msg("No metatags, skipping")
				res.Skipped++
				continue
			}
			if err := p.store.Upsert(ctx, p.record(item, lang, tr, metatags)); err != nil {
				return res, err
			}
			res.Items++
		}
	}

	p.log.Info().
		Int("frontPages", res.FrontPages).
		Int("items", res.Items).
		Int("skipped", res.Skipped).
		Msg("Populated metadata")
	return res, nil
}

func (p *Populator) record(item Item, lang string, tr Translation, metatags string) metadata.Record {
	alias := tr.Alias
	if alias == "" {
		alias = item.InternalPath
	}
	typ := item.Type
	if typ == "" {
		typ = metadata.TypeContentItem
	}
	payload := metadata.Payload{Metatags: metatags}
	if tr.URL != "" {
		payload.Extra = map[string]string{"url": tr.URL}
	}
	return metadata.Record{
		Langcode:     lang,
		Alias:        alias,
		InternalPath: item.InternalPath,
		Type:         typ,
		Payload:      payload,
		UIPath:       alias,
	}
}

// alternates links every translation of the item that has an absolute URL.
func (p *Populator) alternates(item Item) string {
	var tags []shell.Tag
	for _, lang := range p.languages {
		tr, ok := item.Translations[lang]
		if !ok || tr.URL == "" {
			continue
		}
		tags = append(tags, shell.Tag{
			Type: "link",
			Attrs: []shell.Attr{
				{Name: "rel", Value: "alternate"},
				{Name: "hreflang", Value: lang},
				{Name: "href", Value: tr.URL},
			},
		})
	}
	return shell.GetTags(tags...)
}
