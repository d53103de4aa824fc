// Package admin is the operator HTTP API of the gateway: configuration,
// cache buckets, lifecycle and metrics.
package admin

import (
	"net/http"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/logs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	HeaderRequestID = "X-Request-Id"
	ctxLogger       = "admin.logger"
)

type Server struct {
	Gateway *gateway.Gateway
	// Gatherer backs /metrics, which is not routed when nil.
	Gatherer prometheus.Gatherer
	// Client runs subdomain probes.
	Client *http.Client
}

// Router builds the gin engine serving the API under /api/v1.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) { ok(c, "pong") })
		v1.GET("/status", s.status)

		v1.GET("/config", s.getConfig)
		v1.PUT("/config", s.putConfig)
		v1.POST("/config/reload", s.reloadConfig)

		v1.GET("/subdomain-support", s.getSubdomainSupport)
		v1.PUT("/subdomain-support", s.putSubdomainSupport)
		v1.POST("/subdomain-support/probe", s.probeSubdomains)

		v1.GET("/caches", s.listCaches)
		v1.GET("/caches/:name/keys", s.listCacheKeys)
		v1.DELETE("/caches/:name", s.deleteCache)

		v1.POST("/lifecycle/register", s.register)
		v1.POST("/lifecycle/unregister", s.unregister)
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		log := logrus.WithField(logs.FieldRequestID, id)
		c.Set(ctxLogger, log)

		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("admin request")
	}
}

func logFor(c *gin.Context) logrus.FieldLogger {
	if v, exists := c.Get(ctxLogger); exists {
		if l, isLogger := v.(logrus.FieldLogger); isLogger {
			return l
		}
	}
	return logrus.StandardLogger()
}
