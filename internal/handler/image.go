package handler

import (
	"context"
	"errors"
	"net/http"

	"artjournal-backend/internal/model"
	"artjournal-backend/internal/service"
	"artjournal-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ImageService 由 service.ImageService 实现
type ImageService interface {
	Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error)
	ChatMessages(ctx context.Context, chatID string) ([]model.Message, error)
	CancelRecalls(chatID string) int
}

type ImageHandler struct {
	imageService ImageService
}

func NewImageHandler(imageService ImageService) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
	}
}

// Generate 业务失败也返回 200，由 success/message 字段说明
func (h *ImageHandler) Generate(c *gin.Context) {
	var req model.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.imageService.Generate(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Warnf("生图请求中断: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) GetMessages(c *gin.Context) {
	chatID := c.Param("chat_id")

	messages, err := h.imageService.ChatMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chat_id":  chatID,
		"messages": messages,
	})
}

func (h *ImageHandler) CancelRecalls(c *gin.Context) {
	chatID := c.Param("chat_id")

	c.JSON(http.StatusOK, gin.H{
		"chat_id":   chatID,
		"cancelled": h.imageService.CancelRecalls(chatID),
	})
}
