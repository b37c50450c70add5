package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
)

var validate = validator.New()

type SessionMode string

const (
	ModeFull        SessionMode = "full"
	ModeAbbreviated SessionMode = "abbreviated"
)

type SessionPhase string

const (
	PhaseCollectingTier1    SessionPhase = "collecting_tier1"
	PhaseCollectingFreeText SessionPhase = "collecting_free_text"
	PhaseReady              SessionPhase = "ready_to_finalize"
)

// Session is the transient state of one in-flight check-in. It lives only in
// memory: completion, cancellation and idle timeout all destroy it without
// any persistent side effect.
type Session struct {
	UserID       string
	Mode         SessionMode
	Phase        SessionPhase
	DayKey       internal.DayKey
	Items        []catalog.Item
	Answered     []string // item IDs in answer order, drives undo
	Answers      map[string]internal.Tier1Answer
	Prompts      []catalog.FreeTextPrompt
	FreeText     []internal.FreeTextAnswer
	StartedAt    time.Time
	LastActivity time.Time
}

// Prompt is what the transport relays to the user next.
type Prompt struct {
	Kind     string `json:"kind"` // tier1 | free_text | ready
	ItemID   string `json:"item_id,omitempty"`
	Label    string `json:"label,omitempty"`
	WantsHrs bool   `json:"wants_hours,omitempty"`
	Progress string `json:"progress,omitempty"`
}

type AnswerInput struct {
	ItemID string   `json:"item_id" validate:"required"`
	Done   *bool    `json:"done,omitempty"`
	Hours  *float64 `json:"hours,omitempty" validate:"omitempty,gte=0,lte=24"`
	Text   string   `json:"text,omitempty" validate:"omitempty,max=2000"`
}

// SessionManager is the check-in state machine. One session per user; a
// second concurrent start is rejected rather than silently superseding the
// first. All per-user transitions happen under one mutex, which is fine at
// this scale because no storage I/O runs while it is held except finalize's
// commit, which is per-user work anyway.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	engine      *Engine
	clock       clock.Clock
	idleTimeout time.Duration
	logger      internal.Logger
}

func NewSessionManager(engine *Engine, clk clock.Clock, cfg *config.Config, logger internal.Logger) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		engine:      engine,
		clock:       clk,
		idleTimeout: time.Duration(cfg.SessionIdleM) * time.Minute,
		logger:      logger,
	}
}

// StartResult tells the transport what to do next: prompt for the first
// item, or report that today is already covered (and whether the correction
// flow is still open).
type StartResult struct {
	Prompt         *Prompt                 `json:"prompt,omitempty"`
	Existing       *internal.CheckInRecord `json:"existing,omitempty"`
	CorrectionOpen bool                    `json:"correction_open,omitempty"`
}

// Start opens a session for today's logical day. When a record already
// exists it returns ErrAlreadyCheckedIn together with a StartResult carrying
// the existing record and whether the correction flow is still open.
func (m *SessionManager) Start(ctx context.Context, userID string, mode SessionMode) (*StartResult, error) {
	if mode != ModeFull && mode != ModeAbbreviated {
		return nil, internal.NewDomainError(internal.KindValidation, "bad_mode",
			"mode must be full or abbreviated")
	}

	st, err := m.engine.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	day := m.engine.LogicalDay(st, now)

	existing, err := m.engine.store.GetRecord(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if m.engine.CorrectionOpen(existing) {
			return &StartResult{Existing: existing, CorrectionOpen: true}, internal.ErrAlreadyCheckedIn
		}
		return &StartResult{Existing: existing}, internal.ErrAlreadyCheckedIn
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok && !m.expiredLocked(s, now) {
		return nil, internal.ErrSessionActive
	}

	cat := m.engine.Catalog()
	s := &Session{
		UserID:       userID,
		Mode:         mode,
		Phase:        PhaseCollectingTier1,
		DayKey:       day,
		Items:        cat.ItemsFor(day),
		Answers:      make(map[string]internal.Tier1Answer),
		StartedAt:    now,
		LastActivity: now,
	}
	if mode == ModeFull {
		s.Prompts = cat.FreeTextPrompts()
	}
	m.sessions[userID] = s

	return &StartResult{Prompt: m.nextPromptLocked(s)}, nil
}

// expiredLocked drops a session whose idle timeout has elapsed and reports
// whether it did. Expiry is an auto-cancel: no side effects.
func (m *SessionManager) expiredLocked(s *Session, now time.Time) bool {
	if now.Sub(s.LastActivity) > m.idleTimeout {
		delete(m.sessions, s.UserID)
		m.logger.Infof("session for user %s timed out after %s idle", s.UserID, m.idleTimeout)
		return true
	}
	return false
}

// touchLocked fetches the user's live session, expiring it if stale.
func (m *SessionManager) touchLocked(userID string) (*Session, error) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, internal.ErrNoActiveSession
	}
	now := m.clock.Now()
	if m.expiredLocked(s, now) {
		return nil, internal.ErrNoActiveSession
	}
	s.LastActivity = now
	return s, nil
}

func (m *SessionManager) nextPromptLocked(s *Session) *Prompt {
	switch s.Phase {
	case PhaseCollectingTier1:
		for _, it := range s.Items {
			if _, done := s.Answers[it.ID]; !done {
				return &Prompt{
					Kind:     "tier1",
					ItemID:   it.ID,
					Label:    it.Label,
					WantsHrs: it.HasHours,
					Progress: progress(len(s.Answered), len(s.Items)),
				}
			}
		}
	case PhaseCollectingFreeText:
		if len(s.FreeText) < len(s.Prompts) {
			p := s.Prompts[len(s.FreeText)]
			return &Prompt{
				Kind:     "free_text",
				ItemID:   p.ID,
				Label:    p.Label,
				Progress: progress(len(s.FreeText), len(s.Prompts)),
			}
		}
	}
	return &Prompt{Kind: "ready"}
}

func progress(done, total int) string {
	return fmt.Sprintf("%d/%d", done, total)
}

// SubmitAnswer feeds one answer into the machine. Tier-1 answers must match
// the item currently being prompted; free-text answers must match the
// pending prompt. The returned prompt is the next expected input.
func (m *SessionManager) SubmitAnswer(ctx context.Context, userID string, in AnswerInput) (*Prompt, error) {
	if err := validate.Struct(&in); err != nil {
		return nil, internal.NewDomainError(internal.KindValidation, "bad_answer", err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.touchLocked(userID)
	if err != nil {
		return nil, err
	}

	switch s.Phase {
	case PhaseCollectingTier1:
		expected := m.nextPromptLocked(s)
		if expected.Kind != "tier1" || expected.ItemID != in.ItemID {
			return nil, internal.ErrUnexpectedItem
		}
		if in.Done == nil {
			return nil, internal.NewDomainError(internal.KindValidation, "missing_done",
				"tier1 answers need a yes/no value")
		}
		s.Answers[in.ItemID] = internal.Tier1Answer{ItemID: in.ItemID, Done: *in.Done, Hours: in.Hours}
		s.Answered = append(s.Answered, in.ItemID)
		if len(s.Answered) == len(s.Items) {
			if s.Mode == ModeFull {
				s.Phase = PhaseCollectingFreeText
			} else {
				s.Phase = PhaseReady
			}
		}

	case PhaseCollectingFreeText:
		expected := m.nextPromptLocked(s)
		if expected.Kind != "free_text" || expected.ItemID != in.ItemID {
			return nil, internal.ErrUnexpectedItem
		}
		if strings.TrimSpace(in.Text) == "" {
			return nil, internal.NewDomainError(internal.KindValidation, "missing_text",
				"free-text answers cannot be empty")
		}
		s.FreeText = append(s.FreeText, internal.FreeTextAnswer{PromptID: in.ItemID, Text: in.Text})
		if len(s.FreeText) == len(s.Prompts) {
			s.Phase = PhaseReady
		}

	default:
		return nil, internal.NewDomainError(internal.KindState, "session_complete",
			"all answers collected, call finalize")
	}

	return m.nextPromptLocked(s), nil
}

// UndoLast pops the most recently answered tier-1 item and re-prompts for
// it. Repeated calls walk back through the session in reverse answer order.
func (m *SessionManager) UndoLast(ctx context.Context, userID string) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.touchLocked(userID)
	if err != nil {
		return nil, err
	}
	if len(s.Answered) == 0 {
		return nil, internal.ErrNothingToUndo
	}

	last := s.Answered[len(s.Answered)-1]
	s.Answered = s.Answered[:len(s.Answered)-1]
	delete(s.Answers, last)
	// Undo always lands back in tier-1 collection, discarding any free-text
	// progress gate (the collected texts themselves are kept).
	s.Phase = PhaseCollectingTier1
	return m.nextPromptLocked(s), nil
}

// Cancel discards the session without side effects.
func (m *SessionManager) Cancel(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return internal.ErrNoActiveSession
	}
	delete(m.sessions, userID)
	return nil
}

// Finalize builds the record from the collected answers, scores it and
// hands it to the engine's atomic commit. The session is destroyed only on
// success, so a transient commit failure can be retried.
func (m *SessionManager) Finalize(ctx context.Context, userID string, metadata map[string]float64) (*CommitResult, error) {
	m.mu.Lock()
	s, err := m.touchLocked(userID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if s.Phase != PhaseReady {
		m.mu.Unlock()
		return nil, internal.ErrSessionIncomplete
	}

	answers := make([]internal.Tier1Answer, 0, len(s.Answered))
	for _, id := range s.Answered {
		answers = append(answers, s.Answers[id])
	}
	record := &internal.CheckInRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		DayKey:          s.DayKey,
		Tier1:           answers,
		FreeText:        s.FreeText,
		ComplianceScore: ComplianceScore(m.engine.Catalog(), s.DayKey, answers),
		IsAbbreviated:   s.Mode == ModeAbbreviated,
		SubmittedAt:     m.clock.Now(),
		Metadata:        metadata,
	}
	m.mu.Unlock()

	result, err := m.engine.Commit(ctx, userID, record)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return result, nil
}

// Sweep expires idle sessions; the server runs it on a ticker so abandoned
// sessions do not linger until the user's next touch.
func (m *SessionManager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for _, s := range m.sessions {
		m.expiredLocked(s, now)
	}
}
