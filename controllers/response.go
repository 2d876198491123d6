package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/services"
	"github.com/opsdash/commesse-api/utils"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger sets the logger used by the handlers
func SetLogger(l *zap.Logger) {
	logger = l
}

func respondError(c *gin.Context, status int, code, message string) {
	c.PureJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondValidationError(c *gin.Context, err error) {
	c.PureJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// respondServiceError maps errors returned by the services package to the
// JSON envelope. A no-op is reported as a successful request with changed=false.
func respondServiceError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		persistErr    *services.PersistenceError
		partialErr    *services.PartialDeletionError
		uploadErr     *utils.FileUploadError
	)

	switch {
	case errors.As(err, &validationErr):
		switch validationErr.Kind {
		case services.KindNoOp:
			c.PureJSON(http.StatusOK, gin.H{
				"success": true,
				"changed": false,
				"message": validationErr.Message,
			})
		case services.KindLocked:
			respondError(c, http.StatusConflict, "PHASE_LOCKED", validationErr.Message)
		default:
			c.PureJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": validationErr.Message,
					"kind":    string(validationErr.Kind),
				},
			})
		}
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.As(err, &persistErr):
		respondError(c, http.StatusServiceUnavailable, "PERSISTENCE_ERROR", "The change could not be saved and was reverted. Please retry.")
	case errors.As(err, &partialErr):
		logger.Error("partial deletion reported to client",
			zap.Uint("order_id", partialErr.OrderID),
			zap.Strings("removed", partialErr.Removed),
			zap.Error(partialErr.Err))
		respondError(c, http.StatusInternalServerError, "PARTIAL_DELETION", "The order was only partially deleted")
	case errors.As(err, &uploadErr):
		respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
	default:
		logger.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// finishMutation answers an accepted mutation. By default it waits for the
// durable write so a rollback reaches the client; with ?async=true it returns
// 202 and the optimistic state right away.
func finishMutation(c *gin.Context, m *services.Mutation) {
	store := services.GetPipelineStore()
	status := http.StatusAccepted

	if c.Query("async") != "true" {
		if err := m.Wait(c.Request.Context()); err != nil {
			respondServiceError(c, err)
			return
		}
		status = http.StatusOK
	}

	order, err := store.Order(c.Request.Context(), m.OrderID())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.PureJSON(status, gin.H{
		"success": true,
		"changed": true,
		"data":    order,
	})
}
