package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	uisite "github.com/always-cache/ui-site"
	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/populate"
)

var populatePurge bool

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Replace the stored head markup with the content export",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, logCloser, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logCloser.Close()

		store, err := metadata.NewSQLiteStore(c.MetadataDB)
		if err != nil {
			return err
		}
		defer store.Close()

		p := populate.New(populate.Config{
			Store:     store,
			Source:    populate.YAMLSource{Path: c.ContentFile},
			Languages: c.Languages,
			Logger:    &log.Logger,
		})
		if _, err := p.Run(cmd.Context()); err != nil {
			return err
		}

		if !populatePurge {
			return nil
		}
		n, err := purge(cmd, c, nil, []string{uisite.KeyPrefix})
		if err != nil {
			return err
		}
		log.Info().Int("removed", n).Msg("Purged cached pages")
		return nil
	},
}

func init() {
	f := populateCmd.Flags()
	f.String("content-file", "content.yaml", "content export to populate from")
	f.String("metadata-db", "metadata.db", "metadata DB file name")
	f.String("cache-db", "cache.db", "cache DB file name, for --purge")
	f.String("admin-listen", "127.0.0.1:9090", "admin address of a running server, for --purge")
	f.BoolVar(&populatePurge, "purge", false, "purge cached pages after populating")
	rootCmd.AddCommand(populateCmd)
}
