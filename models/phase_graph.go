package models

// PhaseType identifies the kind of work a phase tracks
type PhaseType string

const (
	PhaseProduction   PhaseType = "production"
	PhaseShipping     PhaseType = "shipping"
	PhaseInstallation PhaseType = "installation"
	PhaseMaintenance  PhaseType = "maintenance"
	PhaseRepair       PhaseType = "repair"
)

// Phase status codes. Some codes are shared between phase types.
const (
	StatusDaFare        = "da_fare"
	StatusInLavorazione = "in_lavorazione"
	StatusInTest        = "in_test"
	StatusStandby       = "standby"
	StatusBloccato      = "bloccato"
	StatusPronto        = "pronto"
	StatusDaPreparare   = "da_preparare"
	StatusSpedito       = "spedito"
	StatusDaProgrammare = "da_programmare"
	StatusProgrammata   = "programmata"
	StatusDaCompletare  = "da_completare"
	StatusCompletata    = "completata"
)

// Installation scheduling moves the phase from "not yet scheduled" to "scheduled".
const (
	InstallationUnscheduled = StatusDaProgrammare
	InstallationScheduled   = StatusProgrammata
)

type statusDefinition struct {
	code  string
	label string
}

type phaseDefinition struct {
	statuses []statusDefinition
	// status that marks work as started; entering it stamps startedAt
	started string
}

// phaseGraph is the closed vocabulary of statuses per phase type.
// Validation and display both read from here.
var phaseGraph = map[PhaseType]phaseDefinition{
	PhaseProduction: {
		statuses: []statusDefinition{
			{StatusDaFare, "Da fare"},
			{StatusInLavorazione, "In lavorazione"},
			{StatusInTest, "In test"},
			{StatusStandby, "Standby"},
			{StatusBloccato, "Bloccato"},
			{StatusPronto, "Pronto"},
		},
		started: StatusInLavorazione,
	},
	PhaseShipping: {
		statuses: []statusDefinition{
			{StatusDaPreparare, "Da preparare"},
			{StatusInLavorazione, "In lavorazione"},
			{StatusPronto, "Pronto"},
			{StatusSpedito, "Spedito"},
		},
		started: StatusInLavorazione,
	},
	PhaseInstallation: {
		statuses: []statusDefinition{
			{StatusDaProgrammare, "Da programmare"},
			{StatusProgrammata, "Programmata"},
			{StatusDaCompletare, "Da completare"},
			{StatusCompletata, "Completata"},
		},
		started: StatusDaCompletare,
	},
	PhaseMaintenance: {
		statuses: []statusDefinition{
			{StatusDaProgrammare, "Da programmare"},
			{StatusInLavorazione, "In lavorazione"},
			{StatusCompletata, "Completata"},
		},
		started: StatusInLavorazione,
	},
	PhaseRepair: {
		statuses: []statusDefinition{
			{StatusDaProgrammare, "Da programmare"},
			{StatusInLavorazione, "In lavorazione"},
			{StatusCompletata, "Completata"},
		},
		started: StatusInLavorazione,
	},
}

// completedStatuses is shared across phase types and drives phase locking.
var completedStatuses = map[string]struct{}{
	"pronto":     {},
	"completato": {},
	"completata": {},
	"spedito":    {},
	"completed":  {},
	"closed":     {},
}

// PhaseTypes returns every known phase type in pipeline order
func PhaseTypes() []PhaseType {
	return []PhaseType{PhaseProduction, PhaseShipping, PhaseInstallation, PhaseMaintenance, PhaseRepair}
}

// IsValid reports whether t is part of the phase vocabulary
func (t PhaseType) IsValid() bool {
	_, ok := phaseGraph[t]
	return ok
}

// AllowedStatuses returns the ordered status vocabulary for a phase type.
// Unknown types have no statuses.
func AllowedStatuses(t PhaseType) []string {
	def, ok := phaseGraph[t]
	if !ok {
		return nil
	}
	codes := make([]string, len(def.statuses))
	for i, s := range def.statuses {
		codes[i] = s.code
	}
	return codes
}

// IsAllowedStatus reports whether status belongs to the vocabulary of t
func IsAllowedStatus(t PhaseType, status string) bool {
	for _, s := range phaseGraph[t].statuses {
		if s.code == status {
			return true
		}
	}
	return false
}

// IsCompleted reports membership in the cross-cutting Completed set
func IsCompleted(status string) bool {
	_, ok := completedStatuses[status]
	return ok
}

// InitialStatus returns the first status of the vocabulary, used for new phases
func InitialStatus(t PhaseType) string {
	def, ok := phaseGraph[t]
	if !ok || len(def.statuses) == 0 {
		return ""
	}
	return def.statuses[0].code
}

// StartedStatus returns the status that marks work on a phase as started
func StartedStatus(t PhaseType) string {
	return phaseGraph[t].started
}

// StatusLabel returns the display label of a status, falling back to the raw code
func StatusLabel(t PhaseType, status string) string {
	for _, s := range phaseGraph[t].statuses {
		if s.code == status {
			return s.label
		}
	}
	return status
}
