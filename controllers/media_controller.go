package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/services"
)

// UploadMedia handles POST /api/v1/orders/:id/media - multipart field "file"
func UploadMedia(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	media := services.GetMediaService()
	if media == nil {
		respondError(c, http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "A file is required in the 'file' field")
		return
	}

	attachment, err := media.Upload(c.Request.Context(), orderID, fileHeader)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    attachment,
	})
}

// ListMedia handles GET /api/v1/orders/:id/media - the order's gallery with presigned URLs
func ListMedia(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	media := services.GetMediaService()
	if media == nil {
		respondError(c, http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured")
		return
	}

	attachments, err := media.List(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    attachments,
		"count":   len(attachments),
	})
}
