package services

import (
	"sort"
	"strings"

	"github.com/opsdash/commesse-api/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StatusClass filters the listing by order completion
type StatusClass string

const (
	StatusActive    StatusClass = "active"
	StatusCompleted StatusClass = "completed"
	StatusAll       StatusClass = "all"
)

// ParseStatusClass validates a status class; empty means all
func ParseStatusClass(s string) (StatusClass, error) {
	switch StatusClass(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusActive:
		return StatusActive, nil
	case StatusCompleted:
		return StatusCompleted, nil
	}
	return "", newValidationError(KindInvalidField, "status class %q is not one of active, completed, all", s)
}

// ListQuery describes a listing request
type ListQuery struct {
	Query           string
	Status          StatusClass
	IncludeArchived bool
}

// FilterAndSort returns the orders matching q in listing order. The input is
// not modified; locks are computed on the returned copies.
func FilterAndSort(orders []models.Order, q ListQuery) []models.Order {
	// Casers and collators keep internal state, so each call gets its own
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(q.Query))

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Archived && !q.IncludeArchived {
			continue
		}
		if !matchesStatus(o, q.Status) {
			continue
		}
		if needle != "" && !matchesQuery(fold, o, needle) {
			continue
		}
		c := o.Clone()
		c.Phases = ComputeLocks(c.Phases)
		out = append(out, c)
	}

	col := collate.New(language.Italian, collate.IgnoreCase, collate.Loose)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if wa, wb := a.Priority.Weight(), b.Priority.Weight(); wa != wb {
			return wa > wb
		}
		if ca, cb := a.IsCompleted(), b.IsCompleted(); ca != cb {
			return !ca
		}
		if c := col.CompareString(sortName(a), sortName(b)); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return out
}

func matchesStatus(o models.Order, class StatusClass) bool {
	switch class {
	case StatusActive:
		return !o.IsCompleted()
	case StatusCompleted:
		return o.IsCompleted()
	}
	return true
}

func matchesQuery(fold cases.Caser, o models.Order, needle string) bool {
	for _, field := range []string{o.Title, o.Number, o.CustomerName(), o.Article} {
		if strings.Contains(fold.String(field), needle) {
			return true
		}
	}
	return false
}

// sortName is the customer name, or the title for orders without a customer
func sortName(o models.Order) string {
	if name := o.CustomerName(); name != "" {
		return name
	}
	return o.Title
}
