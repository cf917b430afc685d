package session

import (
	"context"
	"sort"

	"devlens/internal/calendar"
)

// activeDraftStatuses are the draft states that count as live work.
var activeDraftStatuses = []calendar.DraftStatus{
	calendar.StatusProcessing,
	calendar.StatusDownloading,
}

// GetActiveSession returns the live session after zombie remediation. The
// most recently updated processing record wins; otherwise the newest
// calendar draft that is downloading or processing is projected.
func (c *Controller) GetActiveSession(ctx context.Context) (Projection, bool) {
	c.ReapStale(ctx)

	var (
		best  Record
		found bool
	)
	for _, rec := range c.store.snapshot() {
		if rec.Status != StatusProcessing {
			continue
		}
		if !found || rec.LastUpdated.After(best.LastUpdated) {
			best = rec
			found = true
		}
	}
	if found {
		return best.Project(), true
	}

	if c.drafts == nil {
		return Projection{}, false
	}
	// A draft backed by a record that is not processing describes settled or
	// unsubmitted work; the record is the authority.
	drafts := c.drafts.ListDrafts(ctx, activeDraftStatuses...)
	live := make([]calendar.DraftSession, 0, len(drafts))
	for _, draft := range drafts {
		if _, tracked := c.store.view(draft.SessionID); tracked {
			continue
		}
		live = append(live, draft)
	}
	drafts = live
	if len(drafts) == 0 {
		return Projection{}, false
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
	return c.projectDraft(drafts[0]), true
}

// StatusOrDraft answers a per-id status query, falling back to the calendar
// draft with the same id when no session record exists.
func (c *Controller) StatusOrDraft(ctx context.Context, id string) (Projection, bool) {
	if proj, ok := c.GetStatus(ctx, id); ok {
		return proj, true
	}
	if c.drafts == nil {
		return Projection{}, false
	}
	draft, ok := c.drafts.GetDraft(ctx, id)
	if !ok {
		return Projection{}, false
	}
	return c.projectDraft(draft), true
}

func (c *Controller) projectDraft(draft calendar.DraftSession) Projection {
	var modeName string
	if c.modes != nil && draft.SuggestedMode != "" {
		modeName = c.modes.DisplayName(draft.SuggestedMode)
	}
	return DraftProjection(draft, modeName)
}

// draftStatusSetter is implemented by draft sources that accept status
// updates, such as calendar.Watcher.
type draftStatusSetter interface {
	UpdateStatus(ctx context.Context, id string, status calendar.DraftStatus, patch map[string]any) (calendar.DraftSession, bool)
}

// settleDraft marks a live same-id draft failed once its record can no
// longer make progress.
func (c *Controller) settleDraft(ctx context.Context, id, reason string) {
	setter, ok := c.drafts.(draftStatusSetter)
	if !ok {
		return
	}
	draft, ok := c.drafts.GetDraft(ctx, id)
	if !ok || (draft.Status != calendar.StatusProcessing && draft.Status != calendar.StatusDownloading) {
		return
	}
	setter.UpdateStatus(ctx, id, calendar.StatusFailed, map[string]any{"error": reason})
}
