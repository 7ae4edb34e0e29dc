package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/services"
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) List(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	rows, err := h.svc.List(c.Request.Context(), rid, c.Query("status"), queryLimit(c, 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": rows})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	row, err := h.svc.Get(c.Request.Context(), rid, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ConversationHandler) Close(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	if err := h.svc.Close(c.Request.Context(), rid, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type replyRequest struct {
	Text string `json:"text"`
}

func (h *ConversationHandler) Reply(c *gin.Context) {
	rid, staffID, ok := staffScope(c)
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ConversationHandler.Reply", "invalid_json", "invalid json body")
		return
	}
	msg, err := h.svc.Reply(c.Request.Context(), rid, c.Param("id"), staffID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) ToolHistory(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	rows, err := h.svc.ToolHistory(c.Request.Context(), rid, c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tool_executions": rows})
}

func (h *ConversationHandler) VoiceURL(c *gin.Context) {
	rid, _, ok := staffScope(c)
	if !ok {
		return
	}
	url, err := h.svc.VoiceURL(c.Request.Context(), rid, c.Param("id"), c.Query("object"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
