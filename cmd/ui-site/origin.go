package main

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"
)

// newOriginProxy proxies requests to the origin application.
// hostHeader, if set, is sent as Host and used for TLS negotiation.
func newOriginProxy(originURL url.URL, hostHeader string, logger zerolog.Logger) *httputil.ReverseProxy {
	host := originURL.Host
	transport := http.DefaultTransport
	if hostHeader != "" {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: hostHeader,
			},
		}
	}
	return &httputil.ReverseProxy{
		Director:  createDirector(originURL.Scheme, host, hostHeader),
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("url", r.URL.String()).Msg("Origin request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
