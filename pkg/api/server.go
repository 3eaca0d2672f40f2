// Package api exposes the trigger pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/trigger"
	"github.com/kart-io/relayhub/pkg/workflow"
)

// Server is the RelayHub HTTP server.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	pipeline  *trigger.Pipeline
	stores    *store.Stores
	workflows *workflow.Registry
	registrar *trigger.Registrar
	logger    logger.Logger
}

// NewServer wires the HTTP surface over a pipeline and its stores.
func NewServer(cfg *config.Config, pipeline *trigger.Pipeline, stores *store.Stores, workflows *workflow.Registry, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		cfg:       cfg,
		pipeline:  pipeline,
		stores:    stores,
		workflows: workflows,
		registrar: trigger.NewRegistrar(stores.Subscribers, log),
		logger:    log,
	}
	s.setupRoutes()
	return s
}

// Run starts the HTTP server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("http server starting", "addr", s.cfg.Server.Addr)
	return s.router.Run(s.cfg.Server.Addr)
}

// Handler returns the underlying http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "relayhub"})
	})

	v1 := s.router.Group("/v1")
	v1.Use(Auth(s.cfg))
	{
		events := v1.Group("/events")
		{
			events.POST("/trigger", s.handleTrigger())
		}

		topics := v1.Group("/topics")
		{
			topics.POST("", s.handleCreateTopic())
			topics.GET("/:key", s.handleGetTopic())
			topics.POST("/:key/subscribers", s.handleAddTopicSubscribers())
		}

		subscribers := v1.Group("/subscribers")
		{
			subscribers.POST("", s.handleCreateSubscriber())
		}

		workflows := v1.Group("/workflows")
		{
			workflows.POST("", s.handleRegisterWorkflow())
			workflows.GET("", s.handleListWorkflows())
		}

		v1.GET("/notifications", s.handleListNotifications())
		v1.GET("/messages", s.handleListMessages())
		v1.GET("/logs", s.handleListLogs())
	}
}

// errorBody shapes the JSON error envelope.
func errorBody(err error) gin.H {
	body := gin.H{
		"code":    string(errors.CodeOf(err)),
		"message": err.Error(),
	}
	return gin.H{"error": body}
}

// respondError writes the mapped status and error envelope.
func respondError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errorBody(err))
}
