package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Priyapatil1612/citebase/internal/pkg/errcode"
	"github.com/Priyapatil1612/citebase/internal/pkg/response"
	"github.com/Priyapatil1612/citebase/internal/service"
)

type ResearchHandler struct {
	projects *service.ProjectService
}

func NewResearchHandler(projects *service.ProjectService) *ResearchHandler {
	return &ResearchHandler{projects: projects}
}

type researchRequest struct {
	Force bool `json:"force"`
}

// Research triggers the pipeline synchronously and replies with the project
// in its final state, summary included.
func (h *ResearchHandler) Research(c *gin.Context) {
	var req researchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	p, err := h.projects.Research(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, p)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *ResearchHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Question == "" {
		response.Error(c, errcode.ErrInvalid, "question required")
		return
	}
	answer, err := h.projects.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
