package taskstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistent task store. All mutation goes through its
// methods; List and Queue filter out expired tasks, while Get returns a
// task regardless of expiry.
type Store struct {
	db         *sql.DB
	log        zerolog.Logger
	dispatcher *SideEffectDispatcher
}

// New wraps an already-migrated database handle.
func New(db *sql.DB, log zerolog.Logger, dispatcher *SideEffectDispatcher) *Store {
	return &Store{db: db, log: log, dispatcher: dispatcher}
}

// Create inserts req as a new task, or folds it into an existing
// non-completed task via two-stage dedup: first exact (title+location),
// then semantic (same zone, overlapping task_type). Returns the task
// that now reflects req, and whether it was a fresh row.
func (s *Store) Create(req CreateRequest) (*Task, bool, error) {
	if req.BountyGold > maxBountyGold {
		return nil, false, fmt.Errorf("taskstore: bounty_gold %d exceeds cap %d", req.BountyGold, maxBountyGold)
	}

	existing, err := s.findExactDuplicate(req.Title, req.Location)
	if err != nil {
		return nil, false, err
	}
	if existing == nil && req.Zone != "" && len(req.TaskType) > 0 {
		existing, err = s.findSemanticDuplicate(req.Zone, req.TaskType)
		if err != nil {
			return nil, false, err
		}
	}

	if existing != nil {
		updated, err := s.applyUpdate(existing.ID, req)
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	}

	task, err := s.insert(req)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (s *Store) findExactDuplicate(title, location string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE title = ? AND location = ? AND is_completed = 0 LIMIT 1`, title, location)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: exact dedup lookup: %w", err)
	}
	return t, nil
}

func (s *Store) findSemanticDuplicate(zone string, taskType []string) (*Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE zone = ? AND is_completed = 0`, zone)
	if err != nil {
		return nil, fmt.Errorf("taskstore: semantic dedup lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskstore: scan candidate: %w", err)
		}
		if overlaps(t.TaskType, taskType) {
			return t, nil
		}
	}
	return nil, rows.Err()
}

func (s *Store) insert(req CreateRequest) (*Task, error) {
	t := &Task{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Zone:                 req.Zone,
		TaskType:             req.TaskType,
		BountyGold:           req.BountyGold,
		BountyXP:             req.BountyXP,
		Urgency:              req.Urgency,
		MinPeopleRequired:    req.MinPeopleRequired,
		EstimatedDurationMin: req.EstimatedDurationMin,
		IsQueued:             true,
		CreatedAt:            time.Now(),
		ExpiresAt:            req.ExpiresAt,
		AnnouncementAudioURL: req.AnnouncementAudioURL,
		AnnouncementText:     req.AnnouncementText,
		CompletionAudioURL:   req.CompletionAudioURL,
		CompletionText:       req.CompletionText,
	}

	_, err := s.db.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.Location, nullable(t.Zone), taskTypeToJSON(t.TaskType),
		t.BountyGold, t.BountyXP, t.Urgency, t.MinPeopleRequired, t.EstimatedDurationMin,
		0, 1, nil, t.CreatedAt, nil, t.ExpiresAt, nil, nil, nil,
		t.AnnouncementAudioURL, t.AnnouncementText, t.CompletionAudioURL, t.CompletionText, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("taskstore: insert task: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE system_stats SET tasks_created = tasks_created + 1 WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("taskstore: bump tasks_created: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Submit(SideEffect{Kind: SideEffectDeviceXP, TaskID: t.ID, Zone: t.Zone, XPAmount: 10})
	}

	return t, nil
}

// applyUpdate folds req's fields into the existing task identified by
// id: description, bounty, expires_at, task_type, urgency, zone always
// update; voice fields only replace when req supplies them.
func (s *Store) applyUpdate(id string, req CreateRequest) (*Task, error) {
	_, err := s.db.Exec(`UPDATE tasks SET description = ?, bounty_gold = ?, bounty_xp = ?, expires_at = ?,
		task_type = ?, urgency = ?, zone = ?, min_people_required = ?, estimated_duration_min = ?
		WHERE id = ?`,
		req.Description, req.BountyGold, req.BountyXP, req.ExpiresAt,
		taskTypeToJSON(req.TaskType), req.Urgency, nullable(req.Zone), req.MinPeopleRequired, req.EstimatedDurationMin,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("taskstore: update duplicate task: %w", err)
	}

	if req.AnnouncementAudioURL != nil {
		if _, err := s.db.Exec(`UPDATE tasks SET announcement_audio_url = ? WHERE id = ?`, *req.AnnouncementAudioURL, id); err != nil {
			return nil, err
		}
	}
	if req.AnnouncementText != nil {
		if _, err := s.db.Exec(`UPDATE tasks SET announcement_text = ? WHERE id = ?`, *req.AnnouncementText, id); err != nil {
			return nil, err
		}
	}
	if req.CompletionAudioURL != nil {
		if _, err := s.db.Exec(`UPDATE tasks SET completion_audio_url = ? WHERE id = ?`, *req.CompletionAudioURL, id); err != nil {
			return nil, err
		}
	}
	if req.CompletionText != nil {
		if _, err := s.db.Exec(`UPDATE tasks SET completion_text = ? WHERE id = ?`, *req.CompletionText, id); err != nil {
			return nil, err
		}
	}

	return s.Get(id)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Get fetches a task by id regardless of expiry.
func (s *Store) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: get %s: %w", id, err)
	}
	return t, nil
}

// List returns non-expired tasks, newest first, paginated.
func (s *Store) List(skip, limit int) ([]*Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE expires_at IS NULL OR expires_at > ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, time.Now(), limit, skip)
	if err != nil {
		return nil, fmt.Errorf("taskstore: list: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Queue returns queued, non-expired tasks ordered urgency desc, created_at asc.
func (s *Store) Queue() ([]*Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE is_queued = 1 AND is_completed = 0 AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY urgency DESC, created_at ASC`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("taskstore: queue: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
