// Package taskstore persists task lifecycle state: creation with
// two-stage deduplication, accept/complete/dispatch/reminded
// transitions, and expiry-aware reads.
package taskstore

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ReportStatus is the outcome a completer records against a task.
type ReportStatus string

const (
	ReportNone          ReportStatus = ""
	ReportNoIssue       ReportStatus = "no_issue"
	ReportResolved      ReportStatus = "resolved"
	ReportNeedsFollowup ReportStatus = "needs_followup"
	ReportCannotResolve ReportStatus = "cannot_resolve"
)

const maxCompletionNoteLen = 500
const maxBountyGold = 5000

// Task is the persisted task record.
type Task struct {
	ID                   string
	Title                string
	Description          string
	Location             string
	Zone                 string
	TaskType             []string
	BountyGold           int
	BountyXP             int
	Urgency              int
	MinPeopleRequired    int
	EstimatedDurationMin int
	IsCompleted          bool
	IsQueued             bool
	DispatchedAt         *time.Time
	CreatedAt            time.Time
	CompletedAt          *time.Time
	ExpiresAt            *time.Time
	LastRemindedAt       *time.Time
	AssignedTo           *string
	AcceptedAt           *time.Time
	AnnouncementAudioURL *string
	AnnouncementText     *string
	CompletionAudioURL   *string
	CompletionText       *string
	ReportStatus         ReportStatus
	CompletionNote       string
}

// CreateRequest is the caller-supplied payload for Create.
type CreateRequest struct {
	Title                string
	Description          string
	Location             string
	Zone                 string
	TaskType             []string
	BountyGold           int
	BountyXP             int
	Urgency              int
	MinPeopleRequired    int
	EstimatedDurationMin int
	ExpiresAt            *time.Time
	AnnouncementAudioURL *string
	AnnouncementText     *string
	CompletionAudioURL   *string
	CompletionText       *string
}

func taskTypeToJSON(types []string) string {
	b, _ := json.Marshal(types)
	return string(b)
}

func taskTypeFromJSON(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func clampCompletionNote(note string) string {
	if len(note) > maxCompletionNoteLen {
		return note[:maxCompletionNoteLen]
	}
	return note
}

func overlaps(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*Task, error) {
	var t Task
	var zone, assignedTo, announcementURL, announcementText, completionURL, completionText, reportStatus sql.NullString
	var taskTypeRaw string
	var dispatchedAt, completedAt, expiresAt, lastRemindedAt, acceptedAt sql.NullTime
	var isCompleted, isQueued int

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Location, &zone, &taskTypeRaw,
		&t.BountyGold, &t.BountyXP, &t.Urgency, &t.MinPeopleRequired, &t.EstimatedDurationMin,
		&isCompleted, &isQueued, &dispatchedAt, &t.CreatedAt, &completedAt, &expiresAt,
		&lastRemindedAt, &assignedTo, &acceptedAt, &announcementURL, &announcementText,
		&completionURL, &completionText, &reportStatus, &t.CompletionNote,
	)
	if err != nil {
		return nil, err
	}

	t.Zone = zone.String
	t.TaskType = taskTypeFromJSON(taskTypeRaw)
	t.IsCompleted = isCompleted != 0
	t.IsQueued = isQueued != 0
	t.ReportStatus = ReportStatus(reportStatus.String)

	if dispatchedAt.Valid {
		t.DispatchedAt = &dispatchedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	if lastRemindedAt.Valid {
		t.LastRemindedAt = &lastRemindedAt.Time
	}
	if acceptedAt.Valid {
		t.AcceptedAt = &acceptedAt.Time
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if announcementURL.Valid {
		t.AnnouncementAudioURL = &announcementURL.String
	}
	if announcementText.Valid {
		t.AnnouncementText = &announcementText.String
	}
	if completionURL.Valid {
		t.CompletionAudioURL = &completionURL.String
	}
	if completionText.Valid {
		t.CompletionText = &completionText.String
	}

	return &t, nil
}

const taskColumns = `id, title, description, location, zone, task_type, bounty_gold, bounty_xp,
	urgency, min_people_required, estimated_duration_min, is_completed, is_queued,
	dispatched_at, created_at, completed_at, expires_at, last_reminded_at, assigned_to,
	accepted_at, announcement_audio_url, announcement_text, completion_audio_url,
	completion_text, report_status, completion_note`
