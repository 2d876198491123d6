package services

import (
	"testing"
	"time"

	"github.com/opsdash/commesse-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phases(statuses ...string) []models.Phase {
	types := []models.PhaseType{models.PhaseProduction, models.PhaseShipping, models.PhaseInstallation}
	out := make([]models.Phase, len(statuses))
	for i, s := range statuses {
		out[i] = models.Phase{ID: uint(i + 1), PhaseType: types[i%len(types)], PhaseOrder: i + 1, Status: s}
	}
	return out
}

func TestIsLocked(t *testing.T) {
	tests := []struct {
		name     string
		phases   []models.Phase
		target   int
		expected bool
	}{
		{"First phase is never locked", phases(models.StatusDaFare, models.StatusDaPreparare), 0, false},
		{"Predecessor not completed", phases(models.StatusInLavorazione, models.StatusDaPreparare), 1, true},
		{"Predecessor completed", phases(models.StatusPronto, models.StatusDaPreparare), 1, false},
		{"Only the direct predecessor counts", phases(models.StatusDaFare, models.StatusSpedito, models.StatusDaProgrammare), 2, false},
		{"Locked even when already completed", phases(models.StatusDaFare, models.StatusSpedito), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocked(tt.phases[tt.target], tt.phases))
		})
	}

	t.Run("Missing predecessor counts as locked", func(t *testing.T) {
		gap := []models.Phase{
			{ID: 1, PhaseType: models.PhaseProduction, PhaseOrder: 1, Status: models.StatusPronto},
			{ID: 3, PhaseType: models.PhaseInstallation, PhaseOrder: 3, Status: models.StatusDaProgrammare},
		}
		assert.True(t, IsLocked(gap[1], gap))
	})
}

func TestComputeLocksDoesNotMutateInput(t *testing.T) {
	in := phases(models.StatusDaFare, models.StatusDaPreparare)
	out := ComputeLocks(in)

	assert.False(t, out[0].Locked)
	assert.True(t, out[1].Locked)
	assert.False(t, in[1].Locked)
}

func TestSortAndValidatePhaseSequence(t *testing.T) {
	ps := []models.Phase{
		{ID: 2, PhaseOrder: 2},
		{ID: 1, PhaseOrder: 1},
		{ID: 3, PhaseOrder: 3},
	}
	SortPhases(ps)
	assert.Equal(t, []uint{1, 2, 3}, []uint{ps[0].ID, ps[1].ID, ps[2].ID})
	assert.NoError(t, ValidatePhaseSequence(ps))

	duplicate := []models.Phase{{ID: 1, PhaseOrder: 1}, {ID: 2, PhaseOrder: 1}}
	assert.Error(t, ValidatePhaseSequence(duplicate))

	gap := []models.Phase{{ID: 1, PhaseOrder: 1}, {ID: 2, PhaseOrder: 3}}
	assert.Error(t, ValidatePhaseSequence(gap))
}

func TestValidateTransition(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		phases       []models.Phase
		target       int
		requested    string
		expectedKind ValidationKind
		check        func(t *testing.T, m PhaseMutation)
	}{
		{
			name:         "Locked is checked before the vocabulary",
			phases:       phases(models.StatusDaFare, models.StatusDaPreparare),
			target:       1,
			requested:    "nonsense",
			expectedKind: KindLocked,
		},
		{
			name:         "Status outside the phase vocabulary",
			phases:       phases(models.StatusDaFare),
			requested:    models.StatusSpedito,
			expectedKind: KindInvalidStatus,
		},
		{
			name:         "Same status",
			phases:       phases(models.StatusInLavorazione),
			requested:    models.StatusInLavorazione,
			expectedKind: KindNoOp,
		},
		{
			name:      "Starting stamps startedAt",
			phases:    phases(models.StatusDaFare),
			requested: models.StatusInLavorazione,
			check: func(t *testing.T, m PhaseMutation) {
				require.NotNil(t, m.StartedAt)
				assert.Equal(t, now, *m.StartedAt)
				assert.Nil(t, m.CompletedAt)
			},
		},
		{
			name:      "Completing stamps completedAt",
			phases:    phases(models.StatusInTest),
			requested: models.StatusPronto,
			check: func(t *testing.T, m PhaseMutation) {
				require.NotNil(t, m.CompletedAt)
				assert.Equal(t, now, *m.CompletedAt)
				assert.Nil(t, m.StartedAt)
			},
		},
		{
			name: "Leaving a completed status clears completedAt",
			phases: func() []models.Phase {
				ps := phases(models.StatusPronto)
				done := now.Add(-time.Hour)
				ps[0].CompletedAt = &done
				return ps
			}(),
			requested: models.StatusInTest,
			check: func(t *testing.T, m PhaseMutation) {
				assert.True(t, m.ClearCompletedAt)
				assert.Nil(t, m.Apply(models.Phase{CompletedAt: &now}).CompletedAt)
			},
		},
		{
			name: "completedAt never precedes startedAt",
			phases: func() []models.Phase {
				ps := phases(models.StatusInLavorazione)
				later := now.Add(time.Hour)
				ps[0].StartedAt = &later
				return ps
			}(),
			requested: models.StatusPronto,
			check: func(t *testing.T, m PhaseMutation) {
				require.NotNil(t, m.CompletedAt)
				assert.Equal(t, now.Add(time.Hour), *m.CompletedAt)
			},
		},
		{
			name: "Installation starts at da_completare",
			phases: []models.Phase{
				{ID: 1, PhaseType: models.PhaseInstallation, PhaseOrder: 1, Status: models.StatusProgrammata},
			},
			requested: models.StatusDaCompletare,
			check: func(t *testing.T, m PhaseMutation) {
				assert.NotNil(t, m.StartedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.phases[tt.target]
			m, err := ValidateTransition(target, tt.requested, tt.phases, now)
			if tt.expectedKind != "" {
				kind, ok := ValidationKindOf(err)
				require.True(t, ok, "expected a validation error, got %v", err)
				assert.Equal(t, tt.expectedKind, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, target.ID, m.PhaseID)
			assert.Equal(t, tt.requested, m.Status)
			tt.check(t, m)
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Unscheduled installation moves to scheduled", func(t *testing.T) {
		ps := []models.Phase{{ID: 1, PhaseType: models.PhaseInstallation, PhaseOrder: 1, Status: models.InstallationUnscheduled}}
		m, reschedule, err := ValidateSchedule(ps[0], date, ps)
		require.NoError(t, err)
		assert.False(t, reschedule)
		assert.Equal(t, models.InstallationScheduled, m.Status)
		assert.Equal(t, date, *m.ScheduledDate)
	})

	t.Run("Other phases keep their status", func(t *testing.T) {
		ps := phases(models.StatusDaFare)
		m, _, err := ValidateSchedule(ps[0], date, ps)
		require.NoError(t, err)
		assert.Empty(t, m.Status)
		assert.Equal(t, map[string]interface{}{"scheduled_date": date}, m.Fields())
	})

	t.Run("Replacing a date is a reschedule", func(t *testing.T) {
		ps := phases(models.StatusDaFare)
		previous := date.AddDate(0, 0, -7)
		ps[0].ScheduledDate = &previous
		_, reschedule, err := ValidateSchedule(ps[0], date, ps)
		require.NoError(t, err)
		assert.True(t, reschedule)
	})

	t.Run("Same date is a no-op", func(t *testing.T) {
		ps := phases(models.StatusDaFare)
		ps[0].ScheduledDate = &date
		_, _, err := ValidateSchedule(ps[0], date, ps)
		assert.True(t, IsNoOp(err))
	})

	t.Run("Locked phase", func(t *testing.T) {
		ps := phases(models.StatusDaFare, models.StatusDaPreparare)
		_, _, err := ValidateSchedule(ps[1], date, ps)
		kind, _ := ValidationKindOf(err)
		assert.Equal(t, KindLocked, kind)
	})

	t.Run("Zero date", func(t *testing.T) {
		ps := phases(models.StatusDaFare)
		_, _, err := ValidateSchedule(ps[0], time.Time{}, ps)
		kind, _ := ValidationKindOf(err)
		assert.Equal(t, KindInvalidField, kind)
	})
}
