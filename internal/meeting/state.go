package meeting

import (
	"fmt"
	"sync"

	"llm-meeting/internal/transcript"
)

// Phase is a step of the meeting lifecycle.
type Phase string

const (
	PhasePending            Phase = "pending"
	PhaseInitializing       Phase = "initializing_participants"
	PhaseProcessingDocument Phase = "processing_document"
	PhaseEnhancingPersonas  Phase = "enhancing_personas"
	PhaseDiscussing         Phase = "discussing"
	PhaseSummarizing        Phase = "summarizing"
	PhaseCompleted          Phase = "completed"
	PhaseError              Phase = "error"
)

var phaseRank = map[Phase]int{
	PhasePending:            0,
	PhaseInitializing:       1,
	PhaseProcessingDocument: 2,
	PhaseEnhancingPersonas:  3,
	PhaseDiscussing:         4,
	PhaseSummarizing:        5,
	PhaseCompleted:          6,
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// State is the mutable record of one meeting run. The engine is its only
// writer; readers such as Statistics may run on other goroutines.
type State struct {
	mu sync.RWMutex

	phase              Phase
	round              int
	expectedStatements int
	activeKeys         []string
	participants       int
	statements         int
	log                transcript.Log
	tokens             int
	errMsg             string
}

func newState() *State {
	return &State{phase: PhasePending}
}

func (s *State) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhasePending
	s.round = 0
	s.expectedStatements = 0
	s.activeKeys = nil
	s.participants = 0
	s.statements = 0
	s.log = transcript.Log{}
	s.tokens = 0
	s.errMsg = ""
}

// AdvancePhase moves to next. Phases only move forward, except that
// PhaseError is reachable from any non-terminal phase.
func (s *State) AdvancePhase(next Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.Terminal() {
		return fmt.Errorf("meeting already %s, cannot move to %s", s.phase, next)
	}
	if next != PhaseError {
		rank, ok := phaseRank[next]
		if !ok {
			return fmt.Errorf("unknown phase %q", next)
		}
		if rank <= phaseRank[s.phase] {
			return fmt.Errorf("cannot move from %s back to %s", s.phase, next)
		}
	}
	s.phase = next
	return nil
}

// AppendEntry adds e to the transcript.
func (s *State) AppendEntry(e transcript.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Append(e)
}

// AddTokens adds n to the running token count.
func (s *State) AddTokens(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens += n
}

func (s *State) recordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func (s *State) setRoster(keys []string, expected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeKeys = append([]string(nil), keys...)
	s.participants = len(keys)
	s.expectedStatements = expected
}

func (s *State) setRound(r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round = r
}

func (s *State) countStatement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements++
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Round returns the current discussion round, 0 before discussion starts.
func (s *State) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// ExpectedStatements is rounds times participants.
func (s *State) ExpectedStatements() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expectedStatements
}

// ActiveKeys returns the participant keys in roster order.
func (s *State) ActiveKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.activeKeys...)
}

// Entries returns a copy of the transcript.
func (s *State) Entries() []transcript.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Entries()
}

// Tokens returns the running token count.
func (s *State) Tokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// ErrorMessage returns the most recent error, if any.
func (s *State) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Statistics is a point-in-time summary of a meeting.
type Statistics struct {
	ParticipantsCount int    `json:"participants_count"`
	TotalStatements   int    `json:"total_statements_made"`
	TranscriptLength  int    `json:"conversation_log_length"`
	Phase             Phase  `json:"current_phase"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

func (s *State) statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		ParticipantsCount: s.participants,
		TotalStatements:   s.statements,
		TranscriptLength:  s.log.Len(),
		Phase:             s.phase,
		ErrorMessage:      s.errMsg,
	}
}
