package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/pkg/errcode"
	appErr "github.com/Priyapatil1612/citebase/internal/pkg/errors"
	"github.com/Priyapatil1612/citebase/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	var dimErr *index.DimensionError
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrResearchRunning):
		response.Error(c, errcode.ErrResearchRunning, "research already running")
	case errors.Is(err, appErr.ErrResearchNotReady):
		response.Error(c, errcode.ErrResearchNotReady, "research not completed")
	case errors.Is(err, appErr.ErrEmptyIndex):
		response.Error(c, errcode.ErrEmptyIndex, "namespace has no indexed chunks")
	case errors.Is(err, appErr.ErrNoPagesIngested):
		response.Error(c, errcode.ErrNoPagesIngested, "no pages could be ingested")
	case errors.Is(err, appErr.ErrAIUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	case errors.As(err, &dimErr):
		response.Error(c, errcode.ErrConflict, dimErr.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
