// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

// ConversationRecord is one completed exchange.
type ConversationRecord = storage.ConversationRecord

// Session errors.
var (
	ErrBusy            = errors.New("a submission is already in progress")
	ErrUnknownTemplate = errors.New("unknown template")
	ErrUnknownPrompt   = errors.New("unknown quick prompt")
)

// Completer streams one chat completion. *openrouter.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req openrouter.CompletionRequest, onDelta func(string)) (string, error)
}

// History is the ordered, duplicate-free list of completed exchanges.
// *storage.HistoryStore implements it.
type History interface {
	Append(ctx context.Context, rec ConversationRecord) (bool, error)
	List(ctx context.Context) ([]ConversationRecord, error)
	Recent(ctx context.Context, n int) ([]ConversationRecord, error)
	Get(ctx context.Context, id string) (ConversationRecord, error)
}

// Stats describe the most recent response.
type Stats struct {
	Characters int           `json:"characters"`
	Words      int           `json:"words"`
	Elapsed    time.Duration `json:"elapsed"`
}

// String renders stats for a status line.
func (s Stats) String() string {
	return fmt.Sprintf("%d chars, %d words, %.1fs", s.Characters, s.Words, s.Elapsed.Seconds())
}

// =============================================================================
// STATE
// =============================================================================

// State is the session's application state. All methods are safe for
// concurrent use.
type State struct {
	client  Completer
	history History

	mu       sync.Mutex
	settings Settings
	current  ConversationRecord
	question string
	template string
	stats    Stats
	busy     bool
	cancel   context.CancelFunc
}

// NewState creates session state with the given settings.
func NewState(settings Settings, client Completer, history History) *State {
	return &State{
		client:   client,
		history:  history,
		settings: settings,
	}
}

// Settings returns a copy of the current settings.
func (s *State) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to a copy of the settings and keeps the result
// if the ranges are valid. The API key may be left empty.
func (s *State) UpdateSettings(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	next.Model = openrouter.ResolveModel(strings.TrimSpace(next.Model))
	if err := next.ValidateRanges(); err != nil {
		return err
	}
	s.settings = next
	s.syncTemplateLocked()
	return nil
}

// ReloadSettings replaces the settings with next, read from a changed config
// file. A template loaded in this session keeps its system prompt, and an
// empty API key in next keeps the current key.
func (s *State) ReloadSettings(next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(next.APIKey) == "" {
		next.APIKey = s.settings.APIKey
	}
	if t, ok := s.loadedTemplateLocked(); ok {
		next.SystemPrompt = t.SystemPrompt
	}
	next.Model = openrouter.ResolveModel(strings.TrimSpace(next.Model))
	if err := next.ValidateRanges(); err != nil {
		return err
	}
	s.settings = next
	s.syncTemplateLocked()
	return nil
}

// loadedTemplateLocked returns the template whose prompt is in effect.
func (s *State) loadedTemplateLocked() (Template, bool) {
	if s.template == "" {
		return Template{}, false
	}
	t, ok := LookupTemplate(s.template)
	if !ok || t.SystemPrompt != s.settings.SystemPrompt {
		return Template{}, false
	}
	return t, true
}

// syncTemplateLocked forgets the template name once its prompt has been
// replaced.
func (s *State) syncTemplateLocked() {
	if _, ok := s.loadedTemplateLocked(); !ok {
		s.template = ""
	}
}

// Current returns the current conversation, or the zero record when none.
func (s *State) Current() ConversationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrentConversation replaces the current conversation.
func (s *State) SetCurrentConversation(rec ConversationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = rec
}

// Question returns the question being composed.
func (s *State) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

// SetQuestion replaces the question being composed.
func (s *State) SetQuestion(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = q
}

// TemplateName returns the name of the last loaded template, if any.
func (s *State) TemplateName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template
}

// LastStats returns stats for the most recent successful submission.
func (s *State) LastStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Busy reports whether a submission is in flight.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// =============================================================================
// HISTORY
// =============================================================================

// AppendHistory adds rec to the history. It reports false when an identical
// record is already present.
func (s *State) AppendHistory(ctx context.Context, rec ConversationRecord) (bool, error) {
	if s.history == nil {
		return false, nil
	}
	return s.history.Append(ctx, rec)
}

// History returns every record in insertion order.
func (s *State) History(ctx context.Context) ([]ConversationRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx)
}

// RecentHistory returns up to n records, newest first.
func (s *State) RecentHistory(ctx context.Context, n int) ([]ConversationRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, n)
}

// LoadRecord makes the history record with the given ID current.
func (s *State) LoadRecord(ctx context.Context, id string) (ConversationRecord, error) {
	if s.history == nil {
		return ConversationRecord{}, storage.ErrRecordNotFound
	}
	rec, err := s.history.Get(ctx, id)
	if err != nil {
		return ConversationRecord{}, err
	}
	s.SetCurrentConversation(rec)
	return rec, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

// Submit asks question using the current settings. onDelta, when non-nil,
// receives each content fragment in arrival order.
//
// Validation failures return *openrouter.ValidationError before any network
// call. On success the record becomes current and, when SaveConversation is
// set, is appended to history. On failure or cancellation the partial text
// is discarded and state is unchanged.
func (s *State) Submit(ctx context.Context, question string, onDelta func(string)) (ConversationRecord, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ConversationRecord{}, ErrBusy
	}
	settings := s.settings
	// The key is checked before the question.
	if err := settings.Validate(); err != nil {
		s.mu.Unlock()
		return ConversationRecord{}, err
	}
	if strings.TrimSpace(question) == "" {
		s.mu.Unlock()
		return ConversationRecord{}, &openrouter.ValidationError{Field: "question", Message: "please enter a question"}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.busy = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	req := openrouter.CompletionRequest{
		Model:       settings.Model,
		Messages:    BuildMessages(settings, question),
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Stream:      true,
		APIKey:      settings.APIKey,
	}

	started := time.Now()
	text, err := s.client.Complete(ctx, req, onDelta)
	if err != nil {
		log.Printf("SUBMIT_FAILED | model=%s error=%v", settings.Model, err)
		return ConversationRecord{}, err
	}
	elapsed := time.Since(started)

	rec := ConversationRecord{
		ID:           storage.NewRecordID(),
		SystemPrompt: settings.SystemPrompt,
		Context:      settings.Context,
		Question:     question,
		Response:     text,
		Model:        settings.Model,
		Timestamp:    time.Now(),
	}

	s.mu.Lock()
	s.current = rec
	s.stats = Stats{
		Characters: len([]rune(text)),
		Words:      util.WordCount(text),
		Elapsed:    elapsed,
	}
	if settings.AutoClear {
		s.question = ""
	}
	s.mu.Unlock()

	if settings.SaveConversation && text != "" {
		// Recorded even if ctx is cancelled after the stream ended.
		if _, err := s.AppendHistory(context.WithoutCancel(ctx), rec); err != nil {
			log.Printf("HISTORY_APPEND_FAILED | id=%s error=%v", rec.ID, err)
		}
	}

	log.Printf("SUBMIT_COMPLETE | id=%s model=%s chars=%d duration=%s",
		rec.ID, rec.Model, len(text), elapsed.Round(time.Millisecond))
	return rec, nil
}

// Cancel aborts the in-flight submission, if any. It reports whether there
// was one to cancel.
func (s *State) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Clear starts a new conversation. History is kept.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ConversationRecord{}
	s.question = ""
	s.stats = Stats{}
}

// LoadTemplate replaces the system prompt with the named template's.
func (s *State) LoadTemplate(name string) (Template, error) {
	t, ok := LookupTemplate(name)
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.SystemPrompt = t.SystemPrompt
	s.template = t.Name
	return t, nil
}

// ApplyQuickPrompt replaces the question with the named quick prompt.
func (s *State) ApplyQuickPrompt(name string) (QuickPrompt, error) {
	p, ok := LookupQuickPrompt(name)
	if !ok {
		return QuickPrompt{}, fmt.Errorf("%w: %q", ErrUnknownPrompt, name)
	}
	s.SetQuestion(p.Prompt)
	return p, nil
}
