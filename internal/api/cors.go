package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin so a browser page on another port
// can drive the feature browser.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		MaxAge:       86400,
	}
}

// corsHeaders renders the header values of config once.
func corsHeaders(config CORSConfig) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  config.AllowOrigin,
		"Access-Control-Allow-Methods": strings.Join(config.AllowMethods, ", "),
		"Access-Control-Allow-Headers": strings.Join(config.AllowHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(config.MaxAge),
	}
}

// NewCORSMiddleware creates CORS middleware with the given configuration
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := corsHeaders(config)
	return func(ctx huma.Context, next func(huma.Context)) {
		for k, v := range headers {
			ctx.SetHeader(k, v)
		}
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight OPTIONS requests on the mux. Huma
// middleware only runs for routes it registered.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	headers := corsHeaders(config)
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
