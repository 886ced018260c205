// internal/engine/alerts.go
package engine

import (
	"fmt"
	"time"

	"github.com/hshokrig/chicken-vault/internal/models"
)

const maxAlerts = 20

// alertRing keeps the most recent workbook diagnostics, deduplicated by ID.
// Pushing an alert whose ID is already present replaces the old entry instead
// of adding a second one.
type alertRing struct {
	items []models.Alert
}

func (r *alertRing) push(a models.Alert) {
	for i := range r.items {
		if r.items[i].ID == a.ID {
			r.items[i] = a
			return
		}
	}
	r.items = append(r.items, a)
	if len(r.items) > maxAlerts {
		r.items = r.items[len(r.items)-maxAlerts:]
	}
}

func (r *alertRing) clear() {
	r.items = nil
}

func (r *alertRing) list() []models.Alert {
	out := make([]models.Alert, len(r.items))
	copy(out, r.items)
	return out
}

func invalidSubmissionAlert(p models.Player, msg string, now time.Time) models.Alert {
	return models.Alert{
		ID:        "invalid:" + p.ID.String(),
		Kind:      models.AlertInvalidSubmission,
		Message:   fmt.Sprintf("%s: %s", p.Name, msg),
		CreatedAt: now,
	}
}
