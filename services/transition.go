package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/opsdash/commesse-api/models"
)

// PhaseMutation describes a validated write to a single phase row,
// including the timestamps derived from the transition.
type PhaseMutation struct {
	PhaseID          uint
	Status           string // empty when the status is unchanged
	ScheduledDate    *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ClearCompletedAt bool
}

// Apply returns a copy of p with the mutation applied
func (m PhaseMutation) Apply(p models.Phase) models.Phase {
	next := p.Clone()
	if m.Status != "" {
		next.Status = m.Status
	}
	if m.ScheduledDate != nil {
		d := *m.ScheduledDate
		next.ScheduledDate = &d
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		next.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		next.CompletedAt = &t
	} else if m.ClearCompletedAt {
		next.CompletedAt = nil
	}
	return next
}

// Fields returns the column updates the mutation persists
func (m PhaseMutation) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if m.Status != "" {
		fields["status"] = m.Status
	}
	if m.ScheduledDate != nil {
		fields["scheduled_date"] = *m.ScheduledDate
	}
	if m.StartedAt != nil {
		fields["started_at"] = *m.StartedAt
	}
	if m.CompletedAt != nil {
		fields["completed_at"] = *m.CompletedAt
	} else if m.ClearCompletedAt {
		fields["completed_at"] = nil
	}
	return fields
}

// IsLocked reports whether phase may not be mutated because its predecessor
// has not reached a completed status. A missing predecessor counts as locked.
func IsLocked(phase models.Phase, siblings []models.Phase) bool {
	if phase.PhaseOrder <= 1 {
		return false
	}
	for _, s := range siblings {
		if s.PhaseOrder == phase.PhaseOrder-1 {
			return !models.IsCompleted(s.Status)
		}
	}
	return true
}

// ComputeLocks returns a copy of phases with Locked recomputed
func ComputeLocks(phases []models.Phase) []models.Phase {
	out := make([]models.Phase, len(phases))
	for i, p := range phases {
		out[i] = p.Clone()
		out[i].Locked = IsLocked(p, phases)
	}
	return out
}

// SortPhases orders phases by phase_order in place
func SortPhases(phases []models.Phase) {
	sort.SliceStable(phases, func(i, j int) bool {
		return phases[i].PhaseOrder < phases[j].PhaseOrder
	})
}

// ValidatePhaseSequence checks that phase_order values are unique and run 1..n.
// phases must already be sorted.
func ValidatePhaseSequence(phases []models.Phase) error {
	for i, p := range phases {
		if p.PhaseOrder != i+1 {
			return fmt.Errorf("phase %d has phase_order %d, expected %d", p.ID, p.PhaseOrder, i+1)
		}
	}
	return nil
}

// ValidateTransition decides whether target may move to requested.
// Checks run in order: locked, status vocabulary, no-op.
func ValidateTransition(target models.Phase, requested string, siblings []models.Phase, now time.Time) (PhaseMutation, error) {
	if IsLocked(target, siblings) {
		return PhaseMutation{}, newValidationError(KindLocked,
			"phase %d is locked until phase %d is completed", target.PhaseOrder, target.PhaseOrder-1)
	}
	if !models.IsAllowedStatus(target.PhaseType, requested) {
		return PhaseMutation{}, newValidationError(KindInvalidStatus,
			"status %q is not valid for %s phases", requested, target.PhaseType)
	}
	if requested == target.Status {
		return PhaseMutation{}, newValidationError(KindNoOp, "phase %d is already %s", target.ID, requested)
	}

	m := PhaseMutation{PhaseID: target.ID, Status: requested}
	if requested == models.StartedStatus(target.PhaseType) && target.StartedAt == nil {
		started := now
		m.StartedAt = &started
	}
	if models.IsCompleted(requested) {
		completed := now
		// completedAt never precedes startedAt
		if target.StartedAt != nil && completed.Before(*target.StartedAt) {
			completed = *target.StartedAt
		}
		m.CompletedAt = &completed
	} else if target.CompletedAt != nil {
		m.ClearCompletedAt = true
	}
	return m, nil
}

// ValidateSchedule decides whether target may be scheduled on date. Installation
// phases still unscheduled also move to the scheduled status in the same write.
// The returned flag reports whether a previous date was replaced.
func ValidateSchedule(target models.Phase, date time.Time, siblings []models.Phase) (PhaseMutation, bool, error) {
	if IsLocked(target, siblings) {
		return PhaseMutation{}, false, newValidationError(KindLocked,
			"phase %d is locked until phase %d is completed", target.PhaseOrder, target.PhaseOrder-1)
	}
	if date.IsZero() {
		return PhaseMutation{}, false, newValidationError(KindInvalidField, "scheduled date is required")
	}

	m := PhaseMutation{PhaseID: target.ID, ScheduledDate: &date}
	if target.PhaseType == models.PhaseInstallation && target.Status == models.InstallationUnscheduled {
		m.Status = models.InstallationScheduled
	}
	if m.Status == "" && target.ScheduledDate != nil && target.ScheduledDate.Equal(date) {
		return PhaseMutation{}, false, newValidationError(KindNoOp, "phase %d is already scheduled on %s", target.ID, date.Format("2006-01-02"))
	}
	return m, target.ScheduledDate != nil, nil
}
