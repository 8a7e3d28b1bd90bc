package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperqa/internal/pkg/response"
	"github.com/xxxsen/paperqa/internal/service"
)

type HealthHandler struct {
	papers *service.PaperService
}

func NewHealthHandler(papers *service.PaperService) *HealthHandler {
	return &HealthHandler{papers: papers}
}

func (h *HealthHandler) Health(c *gin.Context) {
	report, err := h.papers.Health(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
