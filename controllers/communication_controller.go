package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/config"
	"github.com/opsdash/commesse-api/middleware"
	"github.com/opsdash/commesse-api/models"
	"gorm.io/gorm"
)

// CreateCommunicationRequest represents the request body for logging a communication
type CreateCommunicationRequest struct {
	Channel string `json:"channel" binding:"omitempty,oneof=note call whatsapp email"`
	Text    string `json:"text" binding:"required"`
}

func orderExists(c *gin.Context, db *gorm.DB, orderID uint) bool {
	var order models.Order
	err := db.WithContext(c.Request.Context()).Select("id").First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return false
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch order")
		return false
	}
	return true
}

// CreateCommunication handles POST /api/v1/orders/:id/communications
func CreateCommunication(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CreateCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	db := config.GetDB()
	if !orderExists(c, db, orderID) {
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = "note"
	}
	communication := models.Communication{
		OrderID: orderID,
		Channel: channel,
		Author:  middleware.ActorFromContext(c),
		Text:    req.Text,
	}

	if err := db.WithContext(c.Request.Context()).Create(&communication).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create communication")
		return
	}

	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    communication,
	})
}

// ListCommunications handles GET /api/v1/orders/:id/communications - newest first
func ListCommunications(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	db := config.GetDB()
	if !orderExists(c, db, orderID) {
		return
	}

	var communications []models.Communication
	if err := db.WithContext(c.Request.Context()).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Find(&communications).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch communications")
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    communications,
		"count":   len(communications),
	})
}
