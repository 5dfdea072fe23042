// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/storage"
)

// ============================================================================
// API TYPES
// ============================================================================

type errorResponse struct {
	Error string `json:"error"`
}

// settingsView is Settings as the page sees it: the key is masked.
type settingsView struct {
	session.Settings
	APIKey    string `json:"api_key"`
	APIKeySet bool   `json:"api_key_set"`
}

// settingsUpdate carries only the fields the page wants to change.
type settingsUpdate struct {
	APIKey           *string  `json:"api_key"`
	Model            *string  `json:"model"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	SystemPrompt     *string  `json:"system_prompt"`
	Context          *string  `json:"context"`
	SaveConversation *bool    `json:"save_conversation"`
	AutoClear        *bool    `json:"auto_clear"`
	ShowStats        *bool    `json:"show_stats"`
}

type statsView struct {
	Characters  int     `json:"characters"`
	Words       int     `json:"words"`
	ElapsedSecs float64 `json:"elapsed_secs"`
	Summary     string  `json:"summary"`
}

type stateResponse struct {
	Settings settingsView                `json:"settings"`
	Current  *session.ConversationRecord `json:"current,omitempty"`
	Question string                      `json:"question"`
	Template string                      `json:"template"`
	Busy     bool                        `json:"busy"`
	Stats    *statsView                  `json:"stats,omitempty"`
}

type historyItem struct {
	ID       string `json:"id"`
	Preview  string `json:"preview"`
	Date     string `json:"date"`
	Model    string `json:"model,omitempty"`
	Question string `json:"question"`
}

type submitRequest struct {
	Question string `json:"question"`
}

type nameRequest struct {
	Name string `json:"name"`
}

// Stream event payloads.
type deltaEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	Record session.ConversationRecord `json:"record"`
	Stats  *statsView                 `json:"stats,omitempty"`
}

type errorEvent struct {
	Message   string `json:"message"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// ============================================================================
// PAGE AND HEALTH
// ============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.state.Busy()})
}

// ============================================================================
// STATE AND SETTINGS
// ============================================================================

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Settings: newSettingsView(s.state.Settings()),
		Question: s.state.Question(),
		Template: s.state.TemplateName(),
		Busy:     s.state.Busy(),
	}
	if cur := s.state.Current(); !cur.IsZero() {
		resp.Current = &cur
		resp.Stats = s.statsView()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSettingsView(s.state.Settings()))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var upd settingsUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	err := s.state.UpdateSettings(func(st *session.Settings) {
		if upd.APIKey != nil {
			st.APIKey = strings.TrimSpace(*upd.APIKey)
		}
		if upd.Model != nil {
			st.Model = *upd.Model
		}
		if upd.Temperature != nil {
			st.Temperature = *upd.Temperature
		}
		if upd.MaxTokens != nil {
			st.MaxTokens = *upd.MaxTokens
		}
		if upd.SystemPrompt != nil {
			st.SystemPrompt = *upd.SystemPrompt
		}
		if upd.Context != nil {
			st.Context = *upd.Context
		}
		if upd.SaveConversation != nil {
			st.SaveConversation = *upd.SaveConversation
		}
		if upd.AutoClear != nil {
			st.AutoClear = *upd.AutoClear
		}
		if upd.ShowStats != nil {
			st.ShowStats = *upd.ShowStats
		}
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, openrouter.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(s.state.Settings()))
}

func newSettingsView(st session.Settings) settingsView {
	return settingsView{
		Settings:  st,
		APIKey:    openrouter.MaskKey(st.APIKey),
		APIKeySet: st.APIKey != "",
	}
}

func (s *Server) statsView() *statsView {
	if !s.state.Settings().ShowStats {
		return nil
	}
	st := s.state.LastStats()
	if st.Characters == 0 {
		return nil
	}
	return &statsView{
		Characters:  st.Characters,
		Words:       st.Words,
		ElapsedSecs: st.Elapsed.Seconds(),
		Summary:     st.String(),
	}
}

// ============================================================================
// SUBMIT (EVENT STREAM)
// ============================================================================

// handleSubmit streams the answer as server-sent events:
//
//	event: delta  data: {"text": "..."}
//	event: done   data: {"record": {...}, "stats": {...}}
//	event: error  data: {"message": "...", "cancelled": bool}
//
// Requests that fail validation get a plain JSON error before the stream
// starts.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.state.SetQuestion(req.Question)

	if err := s.state.Settings().Validate(); err != nil {
		writeError(w, http.StatusBadRequest, openrouter.UserMessage(err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a question.")
		return
	}
	if s.state.Busy() {
		writeError(w, http.StatusConflict, "A response is already streaming.")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rec, err := s.state.Submit(r.Context(), req.Question, func(delta string) {
		writeEvent(w, flusher, "delta", deltaEvent{Text: delta})
	})
	if err != nil {
		cancelled := errors.Is(err, context.Canceled)
		msg := openrouter.UserMessage(err)
		switch {
		case cancelled:
			msg = "Response cancelled."
		case errors.Is(err, session.ErrBusy):
			msg = "A response is already streaming."
		}
		log.Printf("WEB_SUBMIT_FAILED | cancelled=%t error=%v", cancelled, err)
		writeEvent(w, flusher, "error", errorEvent{Message: msg, Cancelled: cancelled})
		return
	}
	writeEvent(w, flusher, "done", doneEvent{Record: rec, Stats: s.statsView()})
}

// writeEvent writes one server-sent event. JSON encoding keeps data on a
// single line.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("WEB_EVENT_ENCODE_FAILED | event=%s error=%v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.state.Cancel()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.state.Clear()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// ============================================================================
// TEMPLATES AND QUICK PROMPTS
// ============================================================================

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"templates":     session.Templates(),
		"quick_prompts": session.QuickPrompts(),
		"models":        openrouter.KnownModels,
	})
}

func (s *Server) handleLoadTemplate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.state.LoadTemplate(req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown template %q.", req.Name))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleQuickPrompt(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.state.ApplyQuickPrompt(req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown quick prompt %q.", req.Name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": p.Prompt})
}

// ============================================================================
// HISTORY
// ============================================================================

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.state.RecentHistory(r.Context(), s.historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:       rec.ID,
			Preview:  rec.QuestionPreview(),
			Date:     rec.DateLabel(),
			Model:    rec.Model,
			Question: rec.Question,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleLoadRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.state.LoadRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ============================================================================
// EXPORT
// ============================================================================

// handleExport downloads the current response as an attachment named like
// the file export (ai_response_YYYYMMDD_HHMMSS.txt).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exporter, err := export.ExporterFor(r.URL.Query().Get("format"), s.exportOpts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := s.state.Current()
	if strings.TrimSpace(rec.Response) == "" {
		writeError(w, http.StatusNotFound, "Nothing to export yet.")
		return
	}
	content, err := exporter.Export(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	name := export.Filename(s.now(), exporter.FileExtension())
	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
	log.Printf("WEB_EXPORT | file=%s bytes=%d", name, len(content))
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into v. It writes the error
// response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
