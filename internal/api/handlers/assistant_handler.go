package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/stt"
	"github.com/yoockh/dinedesk/internal/services"
)

type AssistantHandler struct {
	assistant services.AssistantService
	sentiment services.SentimentService
	responses services.ResponseService
}

func NewAssistantHandler(assistant services.AssistantService, sentiment services.SentimentService, responses services.ResponseService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, sentiment: sentiment, responses: responses}
}

type ProcessRequest struct {
	RestaurantID string         `json:"restaurant_id"`
	CustomerID   string         `json:"customer_id,omitempty"`
	ThreadID     string         `json:"thread_id,omitempty"`
	SenderID     string         `json:"sender_id,omitempty"`
	Channel      string         `json:"channel"`
	Message      string         `json:"message"`
	Context      map[string]any `json:"context,omitempty"`
	AudioBase64  string         `json:"audio_base64,omitempty"`
	AudioFormat  string         `json:"audio_format,omitempty"` // mulaw|wav|ogg
	Language     string         `json:"language,omitempty"`
}

func (h *AssistantHandler) Process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AssistantHandler.Process", "invalid_json", "invalid json body")
		return
	}

	res, err := h.assistant.Process(c.Request.Context(), services.ProcessInput{
		RequestID:    c.GetString("request_id"),
		RestaurantID: req.RestaurantID,
		CustomerID:   req.CustomerID,
		ThreadID:     req.ThreadID,
		SenderID:     req.SenderID,
		Channel:      models.Channel(req.Channel),
		Message:      req.Message,
		Context:      req.Context,
		AudioBase64:  req.AudioBase64,
		AudioFormat:  stt.AudioFormat(req.AudioFormat),
		Language:     req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("restaurant_id", req.RestaurantID)
	c.JSON(http.StatusOK, res)
}

func (h *AssistantHandler) AnalyzeSentiment(c *gin.Context) {
	var req services.SentimentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AssistantHandler.AnalyzeSentiment", "invalid_json", "invalid json body")
		return
	}
	res, err := h.sentiment.Analyze(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type GenerateResponseResponse struct {
	Response string `json:"response"`
}

func (h *AssistantHandler) GenerateResponse(c *gin.Context) {
	var req services.GenerateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AssistantHandler.GenerateResponse", "invalid_json", "invalid json body")
		return
	}
	out, err := h.responses.Generate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenerateResponseResponse{Response: out})
}
