package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/headline-ai/headline-server/internal/common"
	"github.com/headline-ai/headline-server/internal/history"
	"github.com/headline-ai/headline-server/internal/metrics"
)

type aiRequest struct {
	Query string `json:"query" binding:"required"`
}

// CallAgent runs the search-and-summarize pipeline synchronously and appends
// the full turn to the user's active conversation. The request blocks until
// the agent returns.
func (h *Handler) CallAgent(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req aiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "query required")
		return
	}

	start := time.Now()
	_, msgs, err := h.HistSvc.RunAgentTurn(c.Request.Context(), uid, req.Query)
	metrics.AgentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AgentRuns.WithLabelValues("error").Inc()
		common.Detail(c, http.StatusInternalServerError, "agent run failed")
		return
	}
	metrics.AgentRuns.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// CallAgentAsync queues the turn as a job and returns immediately. The worker
// runs the agent and appends the turn; clients poll GetAgentJob.
func (h *Handler) CallAgentAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Detail(c, http.StatusServiceUnavailable, "async agent is not configured")
		return
	}
	var req aiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "query required")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Detail(c, http.StatusBadRequest, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	conv, err := h.HistSvc.GetOrCreateActive(c.Request.Context(), uid)
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Detail(c, http.StatusInternalServerError, "internal error")
		return
	}
	job := &history.TurnJob{
		ID:             jobID,
		UserID:         uid,
		ConversationID: conv.ConversationID,
		Query:          req.Query,
		IdempotencyKey: idempoKeyPtr,
		Status:         history.JobQueued,
	}

	job, created, err := h.HistSvc.CreateJobOrGetExisting(c.Request.Context(), job)
	if err != nil {
		h.Log.Error().Err(err).Str("job_id", jobID).Msg("create turn job failed")
		common.Detail(c, http.StatusInternalServerError, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishTurnJob(c.Request.Context(), job.ID); err != nil {
			h.Log.Error().Err(err).Str("job_id", job.ID).Msg("publish turn job failed")
			common.Detail(c, http.StatusInternalServerError, "enqueue failed")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "conversation_id": conv.ConversationID})
}

func (h *Handler) GetAgentJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	job, err := h.HistSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.historyError(c, err, "Job")
		return
	}
	if job.UserID != uid {
		// hide existence
		common.Detail(c, http.StatusNotFound, "Job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}
