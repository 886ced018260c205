// internal/workbook/alerts.go
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hshokrig/chicken-vault/internal/models"
)

// DetectAlerts stats the active file and inspects its containing directory
// for the sync anomalies a third-party cloud folder can produce:
//
//   - the file is gone (renamed, moved, or not yet synced down): report
//     path-missing with similarly-named candidates so the dealer can repoint;
//   - a similarly-named sibling is newer than the active file beyond a grace
//     threshold: a sync conflict likely forked the workbook;
//   - scoring is active but the mtime hasn't advanced since the last read for
//     longer than the staleness threshold: sync is probably paused.
//
// All alerts are advisory; the poll loop keeps running regardless.
func (a *Adapter) DetectAlerts(lastKnownMTime time.Time, scoringActive bool) []models.Alert {
	var alerts []models.Alert
	now := time.Now()

	st, err := os.Stat(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			alerts = append(alerts, models.Alert{
				ID:         "path-missing",
				Kind:       models.AlertPathMissing,
				Message:    fmt.Sprintf("workbook not found at %s", a.path),
				CreatedAt:  now,
				Candidates: a.similarFiles(""),
			})
		}
		return alerts
	}

	if newer := a.newerDuplicates(st.ModTime()); len(newer) > 0 {
		alerts = append(alerts, models.Alert{
			ID:         "newer-duplicate",
			Kind:       models.AlertNewerDuplicate,
			Message:    "a newer similarly-named workbook exists; a sync conflict may have forked the file",
			CreatedAt:  now,
			Candidates: newer,
		})
	}

	if scoringActive && !lastKnownMTime.IsZero() &&
		!st.ModTime().After(lastKnownMTime) && now.Sub(lastKnownMTime) > a.staleAfter {
		alerts = append(alerts, models.Alert{
			ID:        "sync-stale",
			Kind:      models.AlertSyncStale,
			Message:   fmt.Sprintf("workbook mtime has not advanced in %s; check that the sync client is running", now.Sub(lastKnownMTime).Round(time.Second)),
			CreatedAt: now,
		})
	}

	return alerts
}

// similarFiles lists .xlsx siblings sharing a name token with the configured
// file, excluding the file itself.
func (a *Adapter) similarFiles(exclude string) []string {
	dir := filepath.Dir(a.path)
	base := strings.TrimSuffix(filepath.Base(a.path), filepath.Ext(a.path))
	token := strings.ToLower(base)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		if name == filepath.Base(a.path) || name == exclude {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if strings.Contains(stem, token) || strings.Contains(token, stem) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

// newerDuplicates returns similarly-named siblings modified after the active
// file plus the grace threshold.
func (a *Adapter) newerDuplicates(activeMTime time.Time) []string {
	var out []string
	for _, cand := range a.similarFiles("") {
		st, err := os.Stat(cand)
		if err != nil {
			continue
		}
		if st.ModTime().After(activeMTime.Add(a.duplicateGrace)) {
			out = append(out, cand)
		}
	}
	return out
}
