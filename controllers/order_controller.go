package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
	"go.uber.org/zap"
)

// UpdatePriorityRequest represents the request body for changing an order's priority
type UpdatePriorityRequest struct {
	Priority models.Priority `json:"priority" binding:"required,priority"`
}

// UrgentMessageRequest represents the request body for an urgent broadcast
type UrgentMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func listQuery(c *gin.Context) (services.ListQuery, error) {
	status, err := services.ParseStatusClass(c.Query("status"))
	if err != nil {
		return services.ListQuery{}, err
	}
	return services.ListQuery{
		Query:           c.Query("q"),
		Status:          status,
		IncludeArchived: c.Query("archived") == "true",
	}, nil
}

// ListOrders handles GET /api/v1/orders - returns the dashboard listing
// Query params: q (free text), status (active|completed|all), archived (true|false)
func ListOrders(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	orders, err := services.GetPipelineStore().List(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"count":   len(orders),
	})
}

// ExportOrders handles GET /api/v1/orders/export - downloads the listing as xlsx
// It accepts the same filters as ListOrders.
func ExportOrders(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	orders, err := services.GetPipelineStore().List(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("commesse_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Type", services.XLSXContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := services.ExportXLSX(orders, c.Writer); err != nil {
		// headers are already out, only the log can tell
		logger.Error("failed to write order export", zap.Int("orders", len(orders)), zap.Error(err))
	}
}

// GetOrder handles GET /api/v1/orders/:id - returns one order with its phases
func GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := services.GetPipelineStore().Order(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// UpdateOrder handles PATCH /api/v1/orders/:id - edits descriptive order fields
func UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var patch services.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondValidationError(c, err)
		return
	}

	m, err := services.GetPipelineStore().UpdateOrderFields(c.Request.Context(), id, patch)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	finishMutation(c, m)
}

// UpdatePriority handles PUT /api/v1/orders/:id/priority
func UpdatePriority(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	m, err := services.GetPipelineStore().ApplyPriorityChange(c.Request.Context(), id, req.Priority)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	finishMutation(c, m)
}

// DeleteOrder handles DELETE /api/v1/orders/:id - removes the order and its dependents
func DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := services.GetCascadeDeleter().DeleteOrder(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted",
	})
}

// SendUrgentMessage handles POST /api/v1/orders/:id/urgent - broadcasts a message
// to the notification channel. The message is not stored.
func SendUrgentMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UrgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := services.GetPipelineStore().SendUrgentMessage(c.Request.Context(), id, req.Text); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Message sent",
	})
}
