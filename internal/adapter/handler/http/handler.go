package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"go.uber.org/zap"
)

var errorStatusMap = map[error]int{
	domain.ErrInternal:        http.StatusInternalServerError,
	domain.ErrDataNotFound:    http.StatusNotFound,
	domain.ErrConflictingData: http.StatusConflict,

	domain.ErrUnauthorized:               http.StatusUnauthorized,
	domain.ErrEmptyAuthorizationHeader:   http.StatusUnauthorized,
	domain.ErrInvalidAuthorizationHeader: http.StatusUnauthorized,
	domain.ErrInvalidAuthorizationType:   http.StatusUnauthorized,
	domain.ErrInvalidToken:               http.StatusUnauthorized,
	domain.ErrExpiredToken:               http.StatusUnauthorized,
	domain.ErrForbidden:                  http.StatusForbidden,

	domain.ErrBadRequest: http.StatusBadRequest,

	domain.ErrInvalidTransition:   http.StatusConflict,
	domain.ErrOrderNotCancellable: http.StatusConflict,
	domain.ErrEmptyOrder:          http.StatusUnprocessableEntity,
	domain.ErrBadQuantity:         http.StatusUnprocessableEntity,
	domain.ErrCartOwnership:       http.StatusForbidden,
	domain.ErrCircuitOpen:         http.StatusServiceUnavailable,
}

type Handler struct {
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// statusForError resolves the response code through errors.Is so wrapped
// sentinels still match.
func statusForError(err error) (int, bool) {
	for sentinel, code := range errorStatusMap {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return http.StatusInternalServerError, false
}

// handleValidationError sends an error response for some specific request validation error
func (h *Handler) handleValidationError(ctx *gin.Context, err error) {
	ctx.Status(http.StatusBadRequest)
}

// handleAbort sends an error response and aborts the request with the specified status code and error message
func (h *Handler) handleAbort(ctx *gin.Context, err error) {
	statusCode, ok := statusForError(err)
	if !ok {
		h.logger.Error("aborting request", zap.Error(err))
	}
	_ = ctx.AbortWithError(statusCode, err)
}

func (h *Handler) handleError(ctx *gin.Context, err error) {
	statusCode, ok := statusForError(err)
	if !ok {
		h.logger.Error("error processing request", zap.Error(err))
	}
	ctx.Status(statusCode)
}

// handleSuccess sends a success response with the specified status code and optional data
func (h *Handler) handleSuccessWithStatus(ctx *gin.Context, data any, status int) {
	if data != nil {
		ctx.JSON(status, data)
	} else {
		ctx.Status(status)
	}
}

func (h *Handler) handleSuccess(ctx *gin.Context, data any) {
	h.handleSuccessWithStatus(ctx, data, http.StatusOK)
}
