package handler

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/response"
	"github.com/xxxsen/paperqa/internal/service"
)

type PaperHandler struct {
	papers   *service.PaperService
	maxBytes int64
}

func NewPaperHandler(papers *service.PaperService, maxBytes int64) *PaperHandler {
	return &PaperHandler{papers: papers, maxBytes: maxBytes}
}

type papersResponse struct {
	Papers []*model.Paper `json:"papers"`
}

type askRequest struct {
	PaperID          string `json:"paper_id"`
	Paper2ID         string `json:"paper2_id"`
	Question         string `json:"question"`
	ExplanationLevel string `json:"explanation_level"`
}

type compareRequest struct {
	Paper1ID string   `json:"paper1_id"`
	Paper2ID string   `json:"paper2_id"`
	Aspects  []string `json:"aspects"`
}

// Upload accepts a required "paper1" and an optional "paper2" PDF.
func (h *PaperHandler) Upload(c *gin.Context) {
	files := make([]*multipart.FileHeader, 0, 2)
	for _, field := range []string{"paper1", "paper2"} {
		file, err := c.FormFile(field)
		if err != nil {
			if field == "paper1" {
				handleError(c, fmt.Errorf("%w: paper1 file is required", appErr.ErrInvalid))
				return
			}
			continue
		}
		if h.maxBytes > 0 && file.Size > h.maxBytes {
			handleError(c, fmt.Errorf("%w: %s exceeds the %s upload limit", appErr.ErrInvalid, field, formatUploadLimit(h.maxBytes)))
			return
		}
		files = append(files, file)
	}
	out := papersResponse{Papers: make([]*model.Paper, 0, len(files))}
	for _, file := range files {
		paper, err := h.upload(c, file)
		if err != nil {
			handleError(c, err)
			return
		}
		out.Papers = append(out.Papers, paper)
	}
	response.Success(c, out)
}

func (h *PaperHandler) upload(c *gin.Context, file *multipart.FileHeader) (*model.Paper, error) {
	opened, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", appErr.ErrInvalid, file.Filename, err)
	}
	defer opened.Close()
	return h.papers.Upload(c.Request.Context(), file.Filename, opened, file.Size)
}

func (h *PaperHandler) List(c *gin.Context) {
	papers, err := h.papers.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, papersResponse{Papers: papers})
}

func (h *PaperHandler) Get(c *gin.Context) {
	paper, err := h.papers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, paper)
}

func (h *PaperHandler) Delete(c *gin.Context) {
	if err := h.papers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Ask answers over one paper, or over two when paper2_id is set.
func (h *PaperHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, fmt.Errorf("%w: %w", appErr.ErrInvalid, err))
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	req.Paper2ID = strings.TrimSpace(req.Paper2ID)
	if req.PaperID == "" || strings.TrimSpace(req.Question) == "" {
		handleError(c, fmt.Errorf("%w: paper_id and question are required", appErr.ErrInvalid))
		return
	}
	level := model.NormalizeExplanationLevel(req.ExplanationLevel)
	var (
		answer *model.Answer
		err    error
	)
	if req.Paper2ID != "" {
		answer, err = h.papers.AskPair(c.Request.Context(), req.PaperID, req.Paper2ID, req.Question, level)
	} else {
		answer, err = h.papers.Ask(c.Request.Context(), req.PaperID, req.Question, level)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *PaperHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, fmt.Errorf("%w: %w", appErr.ErrInvalid, err))
		return
	}
	if strings.TrimSpace(req.Paper1ID) == "" || strings.TrimSpace(req.Paper2ID) == "" {
		handleError(c, fmt.Errorf("%w: paper1_id and paper2_id are required", appErr.ErrInvalid))
		return
	}
	cmp, err := h.papers.Compare(c.Request.Context(), strings.TrimSpace(req.Paper1ID), strings.TrimSpace(req.Paper2ID), req.Aspects)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cmp)
}
