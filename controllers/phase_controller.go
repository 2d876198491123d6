package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsdash/commesse-api/models"
	"github.com/opsdash/commesse-api/services"
)

// UpdatePhaseStatusRequest represents the request body for a phase transition
type UpdatePhaseStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SchedulePhaseRequest represents the request body for scheduling a phase.
// Date accepts 2006-01-02 or RFC 3339.
type SchedulePhaseRequest struct {
	Date string `json:"date" binding:"required"`
}

// UpdatePhaseStatus handles PUT /api/v1/phases/:id/status
func UpdatePhaseStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdatePhaseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	m, err := services.GetPipelineStore().ApplyPhaseStatusChange(c.Request.Context(), id, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	finishMutation(c, m)
}

// SchedulePhase handles PUT /api/v1/phases/:id/schedule
func SchedulePhase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req SchedulePhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		respondValidationError(c, err)
		return
	}

	m, err := services.GetPipelineStore().SchedulePhase(c.Request.Context(), id, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	finishMutation(c, m)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// PhaseStatusView is one entry of a phase type's status vocabulary
type PhaseStatusView struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// PhaseTypeView describes a phase type for clients building status pickers
type PhaseTypeView struct {
	Type          models.PhaseType  `json:"type"`
	InitialStatus string            `json:"initial_status"`
	StartedStatus string            `json:"started_status"`
	Statuses      []PhaseStatusView `json:"statuses"`
}

// ListPhaseTypes handles GET /api/v1/phases/types
func ListPhaseTypes(c *gin.Context) {
	types := models.PhaseTypes()
	views := make([]PhaseTypeView, 0, len(types))
	for _, t := range types {
		view := PhaseTypeView{
			Type:          t,
			InitialStatus: models.InitialStatus(t),
			StartedStatus: models.StartedStatus(t),
		}
		for _, code := range models.AllowedStatuses(t) {
			view.Statuses = append(view.Statuses, PhaseStatusView{
				Code:      code,
				Label:     models.StatusLabel(t, code),
				Completed: models.IsCompleted(code),
			})
		}
		views = append(views, view)
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}
