package voice

import "time"

// RejectionEntry is one pre-generated rejection-line manifest record.
type RejectionEntry struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AudioFileName string    `json:"audio_file_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// VoiceEvent is a persisted record of one synthesis/announcement call.
type VoiceEvent struct {
	ID        string
	Kind      string
	Zone      string
	Text      string
	Tone      string
	AudioURL  string
	TaskID    string
	CreatedAt time.Time
}

// AnnounceTask is the subset of TaskStore's Task fields VoicePipeline
// needs to compose announcement/completion text.
type AnnounceTask struct {
	TaskID         string
	Title          string
	Description    string
	Zone           string
	BountyGold     int64
	ReportStatus   string
	CompletionNote string
}
