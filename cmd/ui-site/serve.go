package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	uisite "github.com/always-cache/ui-site"
	"github.com/always-cache/ui-site/config"
	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/metrics"
	"github.com/always-cache/ui-site/pathinfo"
	"github.com/always-cache/ui-site/shell"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Proxy the origin and serve the secondary domain",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":8080", "address to listen on")
	f.String("admin-listen", "127.0.0.1:9090", "address of the admin listener (health, metrics, purge)")
	f.String("main-domain", "", "primary domain, requests on other hosts are served by ui-site")
	f.String("origin", "", "origin URL to proxy to")
	f.String("origin-host", "", "hostname of origin, if it differs from the origin URL")
	f.String("template-path", "index.html", "shell file, or path on the origin")
	f.String("cache-db", "cache.db", "cache DB file name (use 'memory' for in-memory db)")
	f.String("metadata-db", "metadata.db", "metadata DB file name")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, logCloser, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if c.Origin == "" {
		return errors.New("please specify origin")
	}
	originURL, err := url.Parse(c.Origin)
	if err != nil {
		return fmt.Errorf("could not parse origin url: %w", err)
	}

	responses, err := openCache(c)
	if err != nil {
		return err
	}
	defer responses.Close()
	store, err := metadata.NewSQLiteStore(c.MetadataDB)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := log.Logger
	recorder := metrics.NewRecorder()
	origin := newOriginProxy(*originURL, c.OriginHost, logger)

	sources := []shell.Source{shell.FileSource{}}
	if c.TemplateSource == config.SourceOrigin {
		sources = []shell.Source{shell.OriginSource{Handler: origin, Host: c.OriginHost}}
	}
	shells := shell.NewLoader(shell.LoaderConfig{
		Cache:    responses,
		Sources:  sources,
		SiteName: c.SiteName,
		Logger:   &logger,
	})
	site := uisite.CreateSite(uisite.Config{
		MainDomain:   c.MainDomain,
		TemplatePath: c.TemplatePath,
		SiteName:     c.SiteName,
		Cache:        responses,
		Shells:       shells,
		Store:        store,
		Paths: pathinfo.Options{
			Languages:       c.Languages,
			DefaultLanguage: c.DefaultLanguage,
			Negotiate:       c.NegotiateLanguage,
		},
		PathRules:       c.PathRules,
		PayloadRewrites: c.PayloadRewrites,
		FrontPage:       c.FrontPage,
		MaxAge:          c.MaxAge,
		Metrics:         recorder,
		Logger:          &logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.WatchTemplate && c.TemplateSource == config.SourceFile {
		err := shell.WatchFile(ctx, c.TemplatePath, logger, func() {
			if _, err := site.InvalidateTags(shell.KeyPrefix); err != nil {
				logger.Error().Err(err).Msg("Could not invalidate shell")
			}
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Not watching shell")
		}
	}

	servers := []*http.Server{
		{Addr: c.Listen, Handler: frontRouter(logger, site, origin)},
	}
	if c.AdminListen != "" {
		servers = append(servers, &http.Server{Addr: c.AdminListen, Handler: adminRouter(site, recorder)})
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}
	logger.Info().Msgf("Proxying %s to %s (with hostname '%s'), serving hosts other than '%s'",
		c.Listen, originURL.String(), c.OriginHost, c.MainDomain)

	select {
	case err = <-errs:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error().Err(serr).Str("addr", srv.Addr).Msg("Shutdown failed")
		}
	}
	return err
}

// frontRouter logs requests and runs the site in front of the origin.
func frontRouter(logger zerolog.Logger, site *uisite.Site, origin http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("host", r.Host).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	r.Use(middleware.Recoverer)
	r.Use(site.Middleware)
	r.Handle("/*", origin)
	return r
}
