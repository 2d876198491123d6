package controllers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the order endpoints on api. Every route runs auth;
// mutating routes also run writeGuard when it is not nil.
func RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, writeGuard gin.HandlerFunc) {
	RegisterValidations()

	read := []gin.HandlerFunc{auth}
	write := []gin.HandlerFunc{auth}
	if writeGuard != nil {
		write = append(write, writeGuard)
	}
	with := func(chain []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		handlers := append([]gin.HandlerFunc{}, chain...)
		return append(handlers, h)
	}

	orders := api.Group("/orders")
	orders.GET("", with(read, ListOrders)...)
	orders.GET("/export", with(read, ExportOrders)...)
	orders.GET("/:id", with(read, GetOrder)...)
	orders.PATCH("/:id", with(write, UpdateOrder)...)
	orders.PUT("/:id/priority", with(write, UpdatePriority)...)
	orders.DELETE("/:id", with(write, DeleteOrder)...)
	orders.POST("/:id/urgent", with(write, SendUrgentMessage)...)
	orders.GET("/:id/communications", with(read, ListCommunications)...)
	orders.POST("/:id/communications", with(write, CreateCommunication)...)
	orders.GET("/:id/media", with(read, ListMedia)...)
	orders.POST("/:id/media", with(write, UploadMedia)...)

	phases := api.Group("/phases")
	phases.GET("/types", with(read, ListPhaseTypes)...)
	phases.PUT("/:id/status", with(write, UpdatePhaseStatus)...)
	phases.PUT("/:id/schedule", with(write, SchedulePhase)...)
}
