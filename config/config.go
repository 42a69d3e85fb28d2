// Package config loads the ui-site configuration from a YAML file,
// UISITE_ environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	headrewrite "github.com/always-cache/ui-site/pkg/head-rewrite"
	pathrewrite "github.com/always-cache/ui-site/pkg/path-rewrite"
	"github.com/always-cache/ui-site/shell"
)

const (
	SourceFile   = "file"
	SourceOrigin = "origin"
)

type Config struct {
	// Primary domain. Requests on it, and all requests when empty, pass through.
	MainDomain string `mapstructure:"main_domain" yaml:"main_domain"`
	// Shell identifier: a file path, or a path on the origin.
	TemplatePath string `mapstructure:"template_path" yaml:"template_path"`
	// Where the shell is loaded from: file or origin.
	TemplateSource string `mapstructure:"template_source" yaml:"template_source"`
	// URL of the origin application.
	Origin string `mapstructure:"origin" yaml:"origin"`
	// Host header and TLS server name for origin requests, if it differs from the origin URL.
	OriginHost  string `mapstructure:"origin_host" yaml:"origin_host"`
	Listen      string `mapstructure:"listen" yaml:"listen"`
	AdminListen string `mapstructure:"admin_listen" yaml:"admin_listen"`
	// Response and shell cache database, "memory" for an in-memory database.
	CacheDB    string `mapstructure:"cache_db" yaml:"cache_db"`
	MetadataDB string `mapstructure:"metadata_db" yaml:"metadata_db"`
	// Entries held in memory in front of the cache database. 0 disables the memory tier.
	MemoryCacheSize   int      `mapstructure:"memory_cache_size" yaml:"memory_cache_size"`
	Languages         []string `mapstructure:"languages" yaml:"languages"`
	DefaultLanguage   string   `mapstructure:"default_language" yaml:"default_language"`
	NegotiateLanguage bool     `mapstructure:"negotiate_language" yaml:"negotiate_language"`
	// Appended to page titles.
	SiteName string `mapstructure:"site_name" yaml:"site_name"`
	// Max age of served pages in seconds.
	MaxAge          int                       `mapstructure:"max_age" yaml:"max_age"`
	PathRules       pathrewrite.Rules         `mapstructure:"path_rules" yaml:"path_rules"`
	PayloadRewrites []headrewrite.Replacement `mapstructure:"payload_rewrites" yaml:"payload_rewrites"`
	// Front page head per language, used when the store has no front page record.
	FrontPage map[string]FrontPage `mapstructure:"front_page" yaml:"front_page"`
	// Drop cached shells and pages when the shell file changes.
	WatchTemplate bool `mapstructure:"watch_template" yaml:"watch_template"`
	// Content export read by the populate command.
	ContentFile string `mapstructure:"content_file" yaml:"content_file"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
}

type FrontPage struct {
	Title string      `mapstructure:"title" yaml:"title"`
	Tags  []shell.Tag `mapstructure:"tags" yaml:"tags"`
}

var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("main_domain", "")
	v.SetDefault("template_path", "index.html")
	v.SetDefault("template_source", SourceFile)
	v.SetDefault("origin", "")
	v.SetDefault("origin_host", "")
	v.SetDefault("listen", ":8080")
	v.SetDefault("admin_listen", "127.0.0.1:9090")
	v.SetDefault("cache_db", "cache.db")
	v.SetDefault("metadata_db", "metadata.db")
	v.SetDefault("memory_cache_size", 1024)
	v.SetDefault("languages", []string{"is", "en"})
	v.SetDefault("default_language", "is")
	v.SetDefault("negotiate_language", false)
	v.SetDefault("site_name", "Bioborgin")
	v.SetDefault("max_age", 21600)
	v.SetDefault("path_rules", pathrewrite.DefaultRules)
	v.SetDefault("payload_rewrites", headrewrite.DefaultReplacements)
	v.SetDefault("front_page", map[string]any{})
	v.SetDefault("watch_template", true)
	v.SetDefault("content_file", "content.yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// Load reads the configuration. An empty path reads no file.
// Flags are bound by name, with dashes read as underscores.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("UISITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnown(v, key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(tagHook),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isKnown(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.TemplateSource {
	case SourceFile:
	case SourceOrigin:
		if c.Origin == "" {
			return fmt.Errorf("%w: template_source origin needs origin", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown template_source %q", ErrInvalid, c.TemplateSource)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("%w: no languages", ErrInvalid)
	}
	found := false
	for _, l := range c.Languages {
		if l == c.DefaultLanguage {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: default_language %q is not one of %v", ErrInvalid, c.DefaultLanguage, c.Languages)
	}
	if c.MaxAge < 0 || c.MemoryCacheSize < 0 {
		return fmt.Errorf("%w: negative max_age or memory_cache_size", ErrInvalid)
	}
	return nil
}

var tagType = reflect.TypeOf(shell.Tag{})

// tagHook decodes head tags written as flat mappings.
func tagHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != tagType {
		return data, nil
	}
	switch m := data.(type) {
	case map[string]any:
		return shell.TagFromMap(m)
	case map[any]any:
		converted := make(map[string]any, len(m))
		for k, v := range m {
			converted[fmt.Sprint(k)] = v
		}
		return shell.TagFromMap(converted)
	}
	return data, nil
}
