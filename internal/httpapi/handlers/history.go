package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/headline-ai/headline-server/internal/common"
	"github.com/headline-ai/headline-server/internal/history"
)

func (h *Handler) historyError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, history.ErrNotFound):
		common.Detail(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, history.ErrForbidden):
		common.Detail(c, http.StatusForbidden, "not the owner of this conversation")
	default:
		h.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("history operation failed")
		common.Detail(c, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) StartNewConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	conv, err := h.HistSvc.StartNewConversation(c.Request.Context(), uid)
	if err != nil {
		h.historyError(c, err, "conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

type addMessageReq struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) AddMessage(c *gin.Context) {
	var req addMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "role and content required")
		return
	}
	if req.Role != history.RoleHuman && req.Role != history.RoleAI {
		common.Detail(c, http.StatusBadRequest, "role must be human or ai")
		return
	}

	msg, err := h.HistSvc.AppendTurn(c.Request.Context(), c.Param("conversation_id"), req.Role, req.Content)
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) GetConversationHistory(c *gin.Context) {
	hist, err := h.HistSvc.GetHistory(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) ResumeOldConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	hist, err := h.HistSvc.ResumeConversation(c.Request.Context(), uid, c.Param("conversation_id"))
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) ExitConversation(c *gin.Context) {
	conv, err := h.HistSvc.ExitConversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	cid := c.Param("conversation_id")
	if err := h.HistSvc.DeleteConversation(c.Request.Context(), cid); err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	if h.Redis != nil {
		// drop the agent's thread memory along with the conversation
		_ = h.Redis.ClearThread(c.Request.Context(), cid)
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Conversation deleted"})
}

func (h *Handler) ActivateConversation(c *gin.Context) {
	conv, err := h.HistSvc.ActivateConversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) DeactivateConversation(c *gin.Context) {
	conv, err := h.HistSvc.DeactivateConversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.historyError(c, err, "Conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) GetUserConversations(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		common.Detail(c, http.StatusBadRequest, "invalid user id")
		return
	}
	convs, err := h.HistSvc.ListUserConversations(c.Request.Context(), uid)
	if err != nil {
		h.historyError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, convs)
}

type updateMessageReq struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Detail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		common.Detail(c, http.StatusBadRequest, "invalid message id")
		return
	}
	var req updateMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Detail(c, http.StatusBadRequest, "content required")
		return
	}

	msg, err := h.HistSvc.UpdateMessage(c.Request.Context(), uid, msgID, req.Content)
	if err != nil {
		h.historyError(c, err, "Message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Message updated", "message": msg})
}
