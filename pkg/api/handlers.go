package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/notification"
	"github.com/kart-io/relayhub/pkg/store"
	"github.com/kart-io/relayhub/pkg/subscriber"
	"github.com/kart-io/relayhub/pkg/topic"
	"github.com/kart-io/relayhub/pkg/trigger"
	"github.com/kart-io/relayhub/pkg/utils/idgen"
	"github.com/kart-io/relayhub/pkg/workflow"
)

// handleTrigger runs one event trigger through the pipeline.
func (s *Server) handleTrigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req trigger.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInvalidRequest, "malformed trigger request"))
			return
		}
		if req.Name == "" {
			respondError(c, errors.New(errors.CodeInvalidRequest, "trigger must name a workflow"))
			return
		}

		result, err := s.pipeline.Trigger(c.Request.Context(), environmentOf(c), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{
			"status":        result.Status,
			"acknowledged":  result.Acknowledged,
			"transactionId": result.TransactionID,
		}})
	}
}

// createTopicRequest is the topic creation body.
type createTopicRequest struct {
	Key  string `json:"key" binding:"required"`
	Name string `json:"name"`
}

// handleCreateTopic creates a topic in the request's environment.
func (s *Server) handleCreateTopic() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTopicRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInvalidRequest, "malformed topic request"))
			return
		}

		env := environmentOf(c)
		t := &topic.Topic{
			ID:             idgen.TopicID(),
			OrganizationID: env.OrganizationID,
			EnvironmentID:  env.EnvironmentID,
			Key:            req.Key,
			Name:           req.Name,
			CreatedAt:      time.Now(),
		}

		if err := s.stores.Topics.Create(c.Request.Context(), t); err != nil {
			if stderrors.Is(err, store.ErrAlreadyExists) {
				respondError(c, errors.Newf(errors.CodeTopicAlreadyExists, "topic %q already exists", req.Key))
				return
			}
			respondError(c, errors.Wrap(err, errors.CodeInternal, "create topic"))
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{
			"_id": t.ID,
			"key": t.Key,
		}})
	}
}

// handleGetTopic returns a topic with its membership.
func (s *Server) handleGetTopic() gin.HandlerFunc {
	return func(c *gin.Context) {
		env := environmentOf(c)
		key := c.Param("key")

		t, err := s.stores.Topics.FindByKey(c.Request.Context(), env.EnvironmentID, key)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				respondError(c, errors.TopicNotFound(key))
				return
			}
			respondError(c, errors.Wrap(err, errors.CodeInternal, "find topic"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": t})
	}
}

// addTopicSubscribersRequest lists external subscriber ids to register
// with a topic.
type addTopicSubscribersRequest struct {
	Subscribers []string `json:"subscribers" binding:"required"`
}

// handleAddTopicSubscribers registers subscribers with a topic.
// Already-registered ids count as succeeded without duplicating
// membership.
func (s *Server) handleAddTopicSubscribers() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addTopicSubscribersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInvalidRequest, "malformed subscribers request"))
			return
		}

		env := environmentOf(c)
		key := c.Param("key")

		succeeded, err := s.stores.Topics.AddSubscribers(c.Request.Context(), env.EnvironmentID, key, req.Subscribers)
		if err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				respondError(c, errors.TopicNotFound(key))
				return
			}
			respondError(c, errors.Wrap(err, errors.CodeInternal, "add topic subscribers"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"succeeded": succeeded,
		}})
	}
}

// handleCreateSubscriber upserts a subscriber record. An existing
// record with the same subscriberId is returned untouched.
func (s *Server) handleCreateSubscriber() gin.HandlerFunc {
	return func(c *gin.Context) {
		var def subscriber.Definition
		if err := c.ShouldBindJSON(&def); err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInvalidRequest, "malformed subscriber request"))
			return
		}
		if !def.Valid() {
			respondError(c, errors.InvalidRecipient("subscriber definition is missing subscriberId"))
			return
		}

		sub, err := s.registrar.Ensure(c.Request.Context(), environmentOf(c), &def)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": sub})
	}
}

// handleRegisterWorkflow adds or replaces a workflow template.
func (s *Server) handleRegisterWorkflow() gin.HandlerFunc {
	return func(c *gin.Context) {
		var wf workflow.Workflow
		if err := c.ShouldBindJSON(&wf); err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInvalidRequest, "malformed workflow request"))
			return
		}
		if wf.ID == "" {
			wf.ID = idgen.WorkflowID()
		}

		if err := s.workflows.Register(&wf); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": gin.H{
			"_id":  wf.ID,
			"name": wf.Name,
		}})
	}
}

// handleListWorkflows returns the registered workflow names.
func (s *Server) handleListWorkflows() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.workflows.List()})
	}
}

// handleListNotifications returns notifications for a subscriber.
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		env := environmentOf(c)
		subscriberID := c.Query("subscriberId")
		if subscriberID == "" {
			respondError(c, errors.New(errors.CodeInvalidRequest, "subscriberId query parameter is required"))
			return
		}

		notifications, err := s.stores.Notifications.ListBySubscriber(c.Request.Context(), env.EnvironmentID, subscriberID)
		if err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInternal, "list notifications"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": notifications})
	}
}

// handleListMessages returns messages for a subscriber, optionally
// filtered by channel.
func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		env := environmentOf(c)
		subscriberID := c.Query("subscriberId")
		if subscriberID == "" {
			respondError(c, errors.New(errors.CodeInvalidRequest, "subscriberId query parameter is required"))
			return
		}

		channel := notification.Channel(c.Query("channel"))
		if channel != "" && !channel.IsValid() {
			respondError(c, errors.Newf(errors.CodeInvalidRequest, "unknown channel %q", channel))
			return
		}

		messages, err := s.stores.Messages.ListBySubscriber(c.Request.Context(), env.EnvironmentID, subscriberID, channel)
		if err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInternal, "list messages"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": messages})
	}
}

// handleListLogs returns the environment's execution log in append order.
func (s *Server) handleListLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		env := environmentOf(c)

		entries, err := s.stores.Logs.List(c.Request.Context(), env.OrganizationID, env.EnvironmentID)
		if err != nil {
			respondError(c, errors.Wrap(err, errors.CodeInternal, "list execution log"))
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}
