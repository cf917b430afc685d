package workflow

import (
	"context"
	"sort"
	"time"

	"devlens/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool          `json:"running"`
	Active      []string      `json:"active"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	LastError   string        `json:"last_error,omitempty"`
	LastSession string        `json:"last_session,omitempty"`
	Health      []StageHealth `json:"health"`
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running:     m.running,
		Active:      make([]string, 0, len(m.active)),
		Processed:   m.processed,
		Failed:      m.failed,
		LastSession: m.lastSession,
		Health:      append([]StageHealth(nil), m.health...),
	}
	for id := range m.active {
		summary.Active = append(summary.Active, id)
	}
	sort.Strings(summary.Active)
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one zombie remediation pass and returns the number of records
// failed.
func (m *Manager) Sweep(ctx context.Context) int {
	reaped := m.sessions.ReapStale(ctx)
	if reaped > 0 {
		m.logger.Info("zombie sessions reaped",
			logging.Int("count", reaped),
			logging.Duration("threshold", m.sessions.StaleThreshold()),
			logging.String(logging.FieldEventType, "zombie_sweep"),
		)
	}
	return reaped
}
