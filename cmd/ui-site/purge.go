package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	uisite "github.com/always-cache/ui-site"
	"github.com/always-cache/ui-site/config"
	"github.com/always-cache/ui-site/pathinfo"
	"github.com/always-cache/ui-site/shell"
)

var purgeTags []string

var purgeCmd = &cobra.Command{
	Use:   "purge [path...]",
	Short: "Drop cached pages by path or tag, or everything when none is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logCloser, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		tags := purgeTags
		if len(args) == 0 && len(tags) == 0 {
			tags = []string{shell.KeyPrefix}
		}
		removed, err := purge(cmd, c, args, tags)
		if err != nil {
			return err
		}
		log.Info().Int("removed", removed).Msg("Purged")
		return nil
	},
}

// purge goes through the admin listener of a running server, whose memory
// tier would otherwise keep serving the pages. Without a running server
// the cache db is purged directly.
func purge(cmd *cobra.Command, c *config.Config, paths, tags []string) (int, error) {
	if c.AdminListen != "" {
		removed, err := requestPurge(cmd.Context(), c.AdminListen, paths, tags)
		if !errors.Is(err, errAdminUnavailable) {
			return removed, err
		}
		log.Debug().Err(err).Msg("No running server, purging cache db")
	}

	responses, err := openCache(c)
	if err != nil {
		return 0, err
	}
	defer responses.Close()

	site := uisite.CreateSite(uisite.Config{
		MainDomain:   c.MainDomain,
		TemplatePath: c.TemplatePath,
		SiteName:     c.SiteName,
		Cache:        responses,
		Paths: pathinfo.Options{
			Languages:       c.Languages,
			DefaultLanguage: c.DefaultLanguage,
		},
		Logger: &log.Logger,
	})
	for _, path := range paths {
		if err := site.Purge(path); err != nil {
			return 0, err
		}
	}
	removed := len(paths)
	if len(tags) > 0 {
		n, err := site.InvalidateTags(tags...)
		if err != nil {
			return 0, err
		}
		removed += n
	}
	return removed, nil
}

func init() {
	f := purgeCmd.Flags()
	f.StringSliceVar(&purgeTags, "tag", nil, "cache tag to drop, e.g. ui-site:response")
	f.String("cache-db", "cache.db", "cache DB file name")
	f.String("admin-listen", "127.0.0.1:9090", "admin address of a running server, empty to purge the cache db only")
	rootCmd.AddCommand(purgeCmd)
}
