package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smswithoutborders/publisher/internal/config"
	"github.com/smswithoutborders/publisher/internal/http/handler"
	httpmiddleware "github.com/smswithoutborders/publisher/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, publisherHandler *handler.PublisherHandler, rateLimiter *httpmiddleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	v1 := r.Group("/v1")
	{
		oauth2 := v1.Group("/oauth2")
		{
			oauth2.POST("/authorization-url", publisherHandler.AuthorizationURL)
			oauth2.POST("/exchange", publisherHandler.Exchange)
			oauth2.POST("/revoke", publisherHandler.Revoke)
		}

		v1.POST("/publish", publisherHandler.Publish)
	}

	return r
}
