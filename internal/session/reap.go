package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"devlens/internal/logging"
)

// ReapStale fails every processing record whose last update is older than
// the stale threshold. It returns the number of records failed.
func (c *Controller) ReapStale(ctx context.Context) int {
	reaped := 0
	for _, id := range c.store.ids() {
		rec, ok := c.mutate(ctx, id, func(rec *Record) bool {
			if rec.Status != StatusProcessing {
				return false
			}
			idle := c.now().Sub(rec.LastUpdated)
			if idle <= c.staleAfter {
				return false
			}
			rec.Status = StatusFailed
			rec.Error = fmt.Sprintf("%s no progress for %s (last stage %q); the worker likely crashed or hung",
				zombiePrefix, idle.Truncate(time.Second), rec.Stage)
			return true
		})
		if !ok {
			continue
		}
		reaped++
		c.settleDraft(ctx, id, rec.Error)
		logging.WarnWithContext(c.logger, "zombie session failed", "session_zombie_reaped",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldStage, rec.Stage),
			logging.Int("progress", rec.Progress),
			logging.String(logging.FieldErrorHint, "resubmit the session material"),
			logging.String(logging.FieldImpact, "session marked failed"),
		)
	}
	return reaped
}

// IsZombieError reports whether message was written by ReapStale.
func IsZombieError(message string) bool {
	return strings.HasPrefix(message, zombiePrefix)
}

func sortByLastUpdated(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].LastUpdated.Equal(records[j].LastUpdated) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].LastUpdated.After(records[j].LastUpdated)
	})
}
