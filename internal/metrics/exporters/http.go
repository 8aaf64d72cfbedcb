// Package exporters provides HTTP and SSE exporters for metrics.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/gigecam/internal/logging"
)

// HTTPHandler serves the default registry, where the acquisition and GVSP
// collectors register themselves.
func HTTPHandler() http.Handler {
	return HTTPHandlerFor(prometheus.DefaultGatherer, logging.GetLogger("metrics"))
}

// HTTPHandlerFor serves g in the text or OpenMetrics format the scraper
// asks for. A collector that fails is logged and skipped; the rest of the
// scrape is still served.
func HTTPHandlerFor(g prometheus.Gatherer, logger *slog.Logger) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:          scrapeLog{logger},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// scrapeLog adapts slog to promhttp.Logger.
type scrapeLog struct {
	logger *slog.Logger
}

func (l scrapeLog) Println(v ...any) {
	l.logger.Warn("Metrics scrape error", "error", fmt.Sprint(v...))
}
