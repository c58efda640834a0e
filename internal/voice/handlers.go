package voice

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soms-platform/soms-core/internal/httpmw"
)

// maxConcurrentSynthPerKey caps in-flight synthesis work per caller, so
// one chatty consumer can't monopolize the synthesis backend.
const maxConcurrentSynthPerKey = 2

// Router mounts VoicePipeline's HTTP API, including the static audio
// file routes, onto r. Synthesis endpoints run behind a per-key
// concurrency guard; everything else is cheap enough to leave unbounded.
func (p *Pipeline) Router() chi.Router {
	synthGuard := httpmw.ConcurrencyGuard(httpmw.NewSemaphore(maxConcurrentSynthPerKey), func(r *http.Request) string {
		return httpmw.GetAPIKey(r.Context())
	})

	r := chi.NewRouter()
	r.With(synthGuard).Post("/api/voice/synthesize", p.handleSynthesize)
	r.With(synthGuard).Post("/api/voice/announce", p.handleAnnounce)
	r.With(synthGuard).Post("/api/voice/announce_with_completion", p.handleAnnounceWithCompletion)
	r.Post("/api/voice/feedback/{type}", p.handleFeedback)
	r.Get("/api/voice/rejection/random", p.handleRejectionRandom)
	r.Get("/api/voice/rejection/status", p.handleRejectionStatus)
	r.Post("/api/voice/rejection/clear", p.handleRejectionClear)
	r.Get("/audio/{filename}", p.handleServeAudio)
	r.Get("/audio/rejections/{filename}", p.handleServeRejectionAudio)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

func (p *Pipeline) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
		Zone string `json:"zone"`
		Tone string `json:"tone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "text must not be empty")
		return
	}

	audioURL, text, err := p.Synthesize(r.Context(), body.Text, body.Zone, body.Tone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "synthesis_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio_url": audioURL, "text": text})
}

func (p *Pipeline) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text   string `json:"text"`
		Zone   string `json:"zone"`
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "text must not be empty")
		return
	}

	audioURL, err := p.Announce(r.Context(), body.Text, body.Zone, body.TaskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "synthesis_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audio_url": audioURL})
}

func (p *Pipeline) handleAnnounceWithCompletion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID         string `json:"task_id"`
		Title          string `json:"title"`
		Description    string `json:"description"`
		Zone           string `json:"zone"`
		BountyGold     int64  `json:"bounty_gold"`
		ReportStatus   string `json:"report_status"`
		CompletionNote string `json:"completion_note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := p.AnnounceWithCompletion(r.Context(), AnnounceTask{
		TaskID:         body.TaskID,
		Title:          body.Title,
		Description:    body.Description,
		Zone:           body.Zone,
		BountyGold:     body.BountyGold,
		ReportStatus:   body.ReportStatus,
		CompletionNote: body.CompletionNote,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "synthesis_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (p *Pipeline) handleFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackType := chi.URLParam(r, "type")
	var body struct {
		Zone   string `json:"zone"`
		TaskID string `json:"task_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.RecordFeedback(feedbackType, body.Zone, body.TaskID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (p *Pipeline) handleRejectionRandom(w http.ResponseWriter, r *http.Request) {
	text, audioURL, err := p.RandomRejection(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rejection_generation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text, "audio_url": audioURL})
}

func (p *Pipeline) handleRejectionStatus(w http.ResponseWriter, r *http.Request) {
	count, max := p.RejectionStatus()
	writeJSON(w, http.StatusOK, map[string]int{"stock_count": count, "max_stock": max})
}

func (p *Pipeline) handleRejectionClear(w http.ResponseWriter, r *http.Request) {
	if err := p.ClearRejectionStock(); err != nil {
		writeError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (p *Pipeline) handleServeAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !p.audio.Exists("", filename) {
		writeError(w, http.StatusNotFound, "not_found", "audio file not found")
		return
	}
	http.ServeFile(w, r, p.audio.Path("", filename))
}

func (p *Pipeline) handleServeRejectionAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !p.audio.Exists("rejections", filename) {
		writeError(w, http.StatusNotFound, "not_found", "audio file not found")
		return
	}
	http.ServeFile(w, r, p.audio.Path("rejections", filename))
}
