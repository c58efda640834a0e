package taskstore

import (
	"errors"
	"fmt"
	"time"
)

// Lifecycle errors, matched by callers to pick an HTTP status.
var (
	ErrNotFound         = errors.New("taskstore: not found")
	ErrAlreadyCompleted = errors.New("taskstore: already completed")
	ErrAlreadyAccepted  = errors.New("taskstore: already accepted")
)

// Accept assigns task_id to userID (which may be empty for an anonymous
// kiosk accept) and stamps accepted_at.
func (s *Store) Accept(taskID string, userID *string) (*Task, error) {
	t, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted {
		return nil, ErrAlreadyCompleted
	}
	if t.AcceptedAt != nil {
		return nil, ErrAlreadyAccepted
	}

	now := time.Now()
	var assignedTo interface{}
	if userID != nil {
		assignedTo = *userID
	}
	if _, err := s.db.Exec(`UPDATE tasks SET assigned_to = ?, accepted_at = ? WHERE id = ?`, assignedTo, now, taskID); err != nil {
		return nil, fmt.Errorf("taskstore: accept %s: %w", taskID, err)
	}
	return s.Get(taskID)
}

// CompleteRequest is the caller-supplied payload for Complete.
type CompleteRequest struct {
	ReportStatus   ReportStatus
	CompletionNote string
}

// Complete marks task_id completed, stores report fields, bumps
// SystemStats, and fires three side effects:
// device-XP grant, wallet payment (if assigned and bounty_gold>0), and
// a bus publish of the task_report event. Side effects are fire-and-
// forget — see SideEffectDispatcher — so a downstream outage never
// blocks the caller or leaves the task stuck in is_completed=false.
func (s *Store) Complete(taskID string, req CompleteRequest) (*Task, error) {
	t, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted {
		return nil, ErrAlreadyCompleted
	}

	now := time.Now()
	note := clampCompletionNote(req.CompletionNote)

	if _, err := s.db.Exec(`UPDATE tasks SET is_completed = 1, completed_at = ?, report_status = ?, completion_note = ? WHERE id = ?`,
		now, string(req.ReportStatus), note, taskID); err != nil {
		return nil, fmt.Errorf("taskstore: complete %s: %w", taskID, err)
	}

	if _, err := s.db.Exec(`UPDATE system_stats SET tasks_completed = tasks_completed + 1, total_xp = total_xp + ? WHERE id = 1`, t.BountyXP); err != nil {
		return nil, fmt.Errorf("taskstore: bump completion stats: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Submit(SideEffect{Kind: SideEffectDeviceXP, TaskID: taskID, Zone: t.Zone, XPAmount: 20})
		if t.AssignedTo != nil && t.BountyGold > 0 {
			s.dispatcher.Submit(SideEffect{
				Kind:       SideEffectWalletPayment,
				TaskID:     taskID,
				Zone:       t.Zone,
				UserID:     *t.AssignedTo,
				BountyGold: t.BountyGold,
			})
		}
		s.dispatcher.Submit(SideEffect{
			Kind:           SideEffectBusPublish,
			TaskID:         taskID,
			Zone:           t.Zone,
			Title:          t.Title,
			ReportStatus:   string(req.ReportStatus),
			CompletionNote: note,
		})
	}

	return s.Get(taskID)
}

// Dispatch marks a task no longer queued.
func (s *Store) Dispatch(taskID string) (*Task, error) {
	if _, err := s.Get(taskID); err != nil {
		return nil, err
	}
	now := time.Now()
	if _, err := s.db.Exec(`UPDATE tasks SET is_queued = 0, dispatched_at = ? WHERE id = ?`, now, taskID); err != nil {
		return nil, fmt.Errorf("taskstore: dispatch %s: %w", taskID, err)
	}
	return s.Get(taskID)
}

// Reminded stamps last_reminded_at.
func (s *Store) Reminded(taskID string) (*Task, error) {
	if _, err := s.Get(taskID); err != nil {
		return nil, err
	}
	now := time.Now()
	if _, err := s.db.Exec(`UPDATE tasks SET last_reminded_at = ? WHERE id = ?`, now, taskID); err != nil {
		return nil, fmt.Errorf("taskstore: mark reminded %s: %w", taskID, err)
	}
	return s.Get(taskID)
}

// SystemStats is the singleton task-store-wide counter row, enriched
// with live counts computed at read time.
type SystemStats struct {
	TotalXP           int
	TasksCompleted    int
	TasksCreated      int
	ActiveCount       int
	QueuedCount       int
	CompletedLastHour int
}

// Stats returns SystemStats plus live derived counts.
func (s *Store) Stats() (*SystemStats, error) {
	var st SystemStats
	if err := s.db.QueryRow(`SELECT total_xp, tasks_completed, tasks_created FROM system_stats WHERE id = 1`).
		Scan(&st.TotalXP, &st.TasksCompleted, &st.TasksCreated); err != nil {
		return nil, fmt.Errorf("taskstore: stats: %w", err)
	}

	now := time.Now()
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE is_completed = 0 AND (expires_at IS NULL OR expires_at > ?)`, now).
		Scan(&st.ActiveCount); err != nil {
		return nil, fmt.Errorf("taskstore: active count: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE is_queued = 1 AND is_completed = 0 AND (expires_at IS NULL OR expires_at > ?)`, now).
		Scan(&st.QueuedCount); err != nil {
		return nil, fmt.Errorf("taskstore: queued count: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE is_completed = 1 AND completed_at > ?`, now.Add(-time.Hour)).
		Scan(&st.CompletedLastHour); err != nil {
		return nil, fmt.Errorf("taskstore: completed-last-hour count: %w", err)
	}

	return &st, nil
}
