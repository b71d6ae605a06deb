// Package meeting runs a multi-round deliberation between several model
// backends and a moderator, and synthesizes a final report.
package meeting

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm-meeting/config"
	"llm-meeting/internal/extract"
	"llm-meeting/internal/language"
	"llm-meeting/internal/llm"
	"llm-meeting/internal/summarize"
	"llm-meeting/internal/transcript"
)

const (
	moderatorName = "Moderator"
	ragPassages   = 3
)

// ClientFactory builds one invoker per configured model.
type ClientFactory interface {
	Create(model llm.ModelConfig) (llm.Invoker, error)
}

// TextExtractor reads a reference document.
type TextExtractor interface {
	Extract(ctx context.Context, source string) (*extract.Document, error)
}

// Retriever returns passages relevant to a query.
type Retriever interface {
	Relevant(ctx context.Context, query string, k int, diversify bool) ([]string, error)
}

// DocumentIndexer is implemented by retrievers that can ingest the meeting
// document. Reset drops what an earlier run indexed.
type DocumentIndexer interface {
	AddDocument(source, text string) int
	Reset()
}

// CarryOverStore persists unresolved issues for a later meeting.
type CarryOverStore interface {
	Save(topic, issues string) (string, error)
}

// DocumentSummarizer condenses the reference document. A failed call still
// reports the tokens it spent.
type DocumentSummarizer interface {
	Summarize(ctx context.Context, inv llm.Invoker, text string, targetTokens int, style string) (summarize.Summary, error)
}

// Corrector keeps output in the target language.
type Corrector interface {
	Ensure(ctx context.Context, text string, inv llm.Invoker, instruction string) (string, int)
	Profile() language.Profile
}

// Participant is one speaker. Moderator is a participant too.
type Participant struct {
	Key        string
	Name       string
	Persona    string
	Model      llm.ModelConfig
	Rounds     int
	Statements int

	client llm.Invoker
}

// ParticipantStats is the per-participant part of a Result.
type ParticipantStats struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Model      string `json:"model"`
	Persona    string `json:"persona"`
	Rounds     int    `json:"rounds"`
	Statements int    `json:"statements"`
}

// Result is produced exactly once per Run, whether the meeting succeeded
// or not.
type Result struct {
	ID                string             `json:"id"`
	StartedAt         time.Time          `json:"started_at"`
	Settings          Settings           `json:"settings"`
	Transcript        []transcript.Entry `json:"conversation_log"`
	FinalReport       string             `json:"final_summary"`
	DurationSeconds   float64            `json:"duration_seconds"`
	TotalTokens       int                `json:"total_tokens_used"`
	DocumentSummary   *summarize.Summary `json:"document_summary,omitempty"`
	ParticipantsCount int                `json:"participants_count"`
	Participants      []ParticipantStats `json:"participants"`
	Phase             Phase              `json:"phase"`
	Error             string             `json:"error,omitempty"`
	CarryOverID       string             `json:"carry_over_id,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (r *Result) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}

// Engine runs meetings. An Engine runs one meeting at a time.
type Engine struct {
	cfg     *config.Config
	factory ClientFactory

	extractor        TextExtractor
	retriever        Retriever
	carryOver        CarryOverStore
	carryOverContext string
	summarizer       DocumentSummarizer
	corrector        Corrector
	enhancer         PersonaEnhancer
	observers        []Observer
	logger           *zap.Logger
	rng              *rand.Rand
	sleep            func(ctx context.Context, d time.Duration) error
	now              func() time.Time

	state        *State
	meetingID    string
	participants map[string]*Participant
	order        []string
	moderator    *Participant
	context      string
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractor sets the document extractor.
func WithExtractor(x TextExtractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithRetriever sets the passage retriever.
func WithRetriever(r Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithCarryOverStore sets where unresolved issues are saved.
func WithCarryOverStore(s CarryOverStore) Option {
	return func(e *Engine) { e.carryOver = s }
}

// WithCarryOverContext injects the issues left open by an earlier meeting.
func WithCarryOverContext(text string) Option {
	return func(e *Engine) { e.carryOverContext = strings.TrimSpace(text) }
}

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSummarizer replaces the document summarizer.
func WithSummarizer(s DocumentSummarizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.summarizer = s
		}
	}
}

// WithCorrector replaces the language corrector.
func WithCorrector(c Corrector) Option {
	return func(e *Engine) {
		if c != nil {
			e.corrector = c
		}
	}
}

// WithPersonaEnhancer enables persona enhancement.
func WithPersonaEnhancer(p PersonaEnhancer) Option {
	return func(e *Engine) { e.enhancer = p }
}

// WithRand sets the source used to shuffle speaking order.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithSleep replaces the pacing sleep between calls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New returns an engine. The language corrector defaults to the profile
// named by cfg.TargetLanguage, falling back to Japanese.
func New(cfg *config.Config, factory ClientFactory, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg,
		factory:      factory,
		logger:       zap.NewNop(),
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		sleep:        llm.SleepContext,
		now:          time.Now,
		state:        newState(),
		participants: make(map[string]*Participant),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.summarizer == nil {
		e.summarizer = summarize.New(cfg, summarize.WithLogger(e.logger))
	}
	if e.corrector == nil {
		profile, err := language.Lookup(cfg.TargetLanguage)
		if err != nil {
			e.logger.Warn("unknown target language, using Japanese", zap.String("language", cfg.TargetLanguage))
			profile, _ = language.Lookup("ja")
		}
		e.corrector = language.NewCorrector(profile, language.ThresholdsFromConfig(cfg), e.logger)
	}
	return e
}

// State exposes the current meeting state for reading.
func (e *Engine) State() *State {
	return e.state
}

// Statistics returns a snapshot of the current meeting. It is safe to call
// while Run is in progress.
func (e *Engine) Statistics() Statistics {
	return e.state.statistics()
}

// errCancelled marks a run stopped by its context.
var errCancelled = errors.New("meeting cancelled")

// Run holds a meeting and always returns a Result. Initialization failures
// and cancellation end the run in PhaseError; statement, recap, document and
// report failures are recorded and the meeting carries on.
func (e *Engine) Run(ctx context.Context, settings Settings) (result *Result) {
	start := e.now()
	e.reset()
	result = &Result{ID: e.meetingID, StartedAt: start, Settings: settings.clone()}
	e.logger.Info("meeting started", zap.String("meeting_id", e.meetingID), zap.String("topic", settings.Topic))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("meeting panicked", zap.Any("panic", r), zap.Stack("stack"))
			e.fail(fmt.Sprintf("unexpected failure: %v", r))
			result.FinalReport = fmt.Sprintf("(A fatal error occurred during the meeting: %s)", e.state.ErrorMessage())
		}
		e.finish(result, start)
	}()

	if err := settings.Validate(); err != nil {
		e.fail(err.Error())
		result.FinalReport = fmt.Sprintf("(The meeting could not start: %s)", err)
		return result
	}

	if err := e.initialize(settings); err != nil {
		e.fail(err.Error())
		result.FinalReport = fmt.Sprintf("(The meeting could not start: %s)", err)
		return result
	}

	if settings.Document != "" {
		e.advance(PhaseProcessingDocument)
		result.DocumentSummary = e.processDocument(ctx, settings.Document)
	}

	e.advance(PhaseEnhancingPersonas)
	e.enhancePersonas(ctx, settings.Topic, result.DocumentSummary)

	e.advance(PhaseDiscussing)
	if err := e.discuss(ctx, settings, result.DocumentSummary); err != nil {
		e.fail(err.Error())
		result.FinalReport = fmt.Sprintf("(A fatal error occurred during the meeting: %s)", err)
		return result
	}

	e.advance(PhaseSummarizing)
	result.FinalReport, result.CarryOverID = e.finalReport(ctx, settings.Topic, result.DocumentSummary)

	e.advance(PhaseCompleted)
	return result
}

func (e *Engine) reset() {
	e.state.reset()
	e.meetingID = uuid.NewString()
	clear(e.participants)
	e.order = nil
	e.moderator = nil
	e.context = ""
	if ix, ok := e.retriever.(DocumentIndexer); ok {
		ix.Reset()
	}
}

func (e *Engine) finish(result *Result, start time.Time) {
	result.Transcript = e.state.Entries()
	result.TotalTokens = e.state.Tokens()
	result.ParticipantsCount = len(e.participants)
	result.Phase = e.state.Phase()
	if result.Phase == PhaseError {
		result.Error = e.state.ErrorMessage()
	}
	result.FinalReport = strings.TrimSpace(result.FinalReport)
	result.DurationSeconds = e.now().Sub(start).Seconds()

	result.Participants = make([]ParticipantStats, 0, len(e.order))
	for _, key := range e.order {
		p := e.participants[key]
		result.Participants = append(result.Participants, ParticipantStats{
			Key: p.Key, Name: p.Name, Model: p.Model.Name, Persona: p.Persona,
			Rounds: p.Rounds, Statements: p.Statements,
		})
	}

	e.logger.Info("meeting finished",
		zap.String("meeting_id", result.ID),
		zap.String("phase", string(result.Phase)),
		zap.Duration("duration", result.Duration()),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Int("entries", len(result.Transcript)))
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func participantKey(provider llm.Provider, name string) string {
	return unsafeKeyChars.ReplaceAllString(string(provider)+"_"+name, "_")
}

func (e *Engine) initialize(settings Settings) error {
	e.advance(PhaseInitializing)
	lang := e.corrector.Profile().Name

	for _, mc := range settings.Participants {
		base := participantKey(mc.Provider, mc.Name)
		key := base
		for n := 1; e.participants[key] != nil; n++ {
			key = fmt.Sprintf("%s_%d", base, n)
		}

		inv, err := e.factory.Create(mc)
		if err != nil {
			return fmt.Errorf("failed to initialize participant %s: %w", mc.Name, err)
		}
		e.participants[key] = &Participant{
			Key:     key,
			Name:    mc.Name,
			Persona: speakerPersona(mc.Persona, lang),
			Model:   inv.Model(),
			client:  inv,
		}
		e.order = append(e.order, key)
		e.logger.Info("participant ready", zap.String("participant", key), zap.String("persona", e.participants[key].Persona))
	}

	mc := settings.Moderator
	inv, err := e.factory.Create(mc)
	if err != nil {
		return fmt.Errorf("failed to initialize moderator %s: %w", mc.Name, err)
	}
	e.moderator = &Participant{
		Key:     "moderator_" + participantKey(mc.Provider, mc.Name),
		Name:    moderatorName,
		Persona: moderatorPersona(lang),
		Model:   inv.Model(),
		client:  inv,
	}

	expected := settings.Rounds * len(e.participants)
	e.state.setRoster(e.order, expected)
	e.logger.Info("participants initialized",
		zap.Int("participants", len(e.participants)),
		zap.String("moderator", e.moderator.Key),
		zap.Int("expected_statements", expected))
	return nil
}

func (e *Engine) processDocument(ctx context.Context, source string) *summarize.Summary {
	if e.extractor == nil {
		e.reportError("no document extractor configured, document skipped")
		return nil
	}

	doc, err := e.extractor.Extract(ctx, source)
	if err != nil {
		e.reportError(fmt.Sprintf("failed to extract text from document: %v", err))
		return nil
	}
	if strings.TrimSpace(doc.Text) == "" {
		e.reportError("document contains no text")
		return nil
	}

	if ix, ok := e.retriever.(DocumentIndexer); ok {
		ix.AddDocument(source, doc.Text)
	}

	sum, err := e.summarizer.Summarize(ctx, e.moderator.client, doc.Text, e.cfg.DocumentTargetTokens, summarize.DefaultStyle)
	e.state.AddTokens(sum.TokensUsed)
	if err != nil {
		e.reportError(fmt.Sprintf("failed to summarize document: %v", err))
		return nil
	}

	lang := e.corrector.Profile().Name
	corrected, extra := e.corrector.Ensure(ctx, sum.Text, e.moderator.client, documentCorrection(lang))
	if corrected != sum.Text {
		chunks := sum.Chunks
		sum = summarize.NewSummary(doc.Text, corrected, sum.TokensUsed+extra)
		sum.Chunks = chunks
	}
	e.state.AddTokens(extra)

	e.logger.Info("document summary ready",
		zap.Int("summary_chars", sum.SummaryLength),
		zap.Int("tokens", sum.TokensUsed))
	return &sum
}

func (e *Engine) enhancePersonas(ctx context.Context, topic string, doc *summarize.Summary) {
	if e.enhancer == nil {
		e.logger.Info("persona enhancement not configured, skipped")
		return
	}
	docContext := ""
	if doc != nil {
		docContext = doc.Text
	}

	targets := make([]*Participant, 0, len(e.order)+1)
	for _, key := range e.order {
		targets = append(targets, e.participants[key])
	}
	targets = append(targets, e.moderator)

	for _, p := range targets {
		enhanced, err := e.enhancer.Enhance(ctx, p.Persona, topic, docContext)
		if err != nil {
			e.logger.Warn("persona enhancement failed", zap.String("participant", p.Key), zap.Error(err))
			continue
		}
		if enhanced = strings.TrimSpace(enhanced); enhanced != "" {
			p.Persona = enhanced
		}
	}
}

func (e *Engine) discuss(ctx context.Context, settings Settings, doc *summarize.Summary) error {
	lang := e.corrector.Profile().Name
	docText := ""
	if doc != nil {
		docText = doc.Text
	}
	e.context = initialContext(lang, settings.Topic, docText, e.ragContext(ctx, settings.Topic), e.carryOverContext)

	rounds := settings.Rounds
	expected := e.state.ExpectedStatements()
	keys := slices.Clone(e.order)
	statementNo := 0

	for round := 1; round <= rounds; round++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", errCancelled, ctx.Err())
		}
		e.state.setRound(round)
		e.logger.Info("round started", zap.Int("round", round), zap.Int("rounds", rounds))
		e.progress(ProgressRound, round, rounds)

		e.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		for _, key := range keys {
			p := e.participants[key]
			if p.Rounds >= rounds {
				continue
			}
			statementNo++
			e.progress(ProgressStatement, statementNo, expected)
			p.Rounds++
			e.statement(ctx, p)
			if err := e.pause(ctx); err != nil {
				return err
			}
		}

		e.progress(ProgressRecap, round, rounds)
		e.recap(ctx, round)
		if err := e.pause(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("all rounds finished")
	return nil
}

func (e *Engine) pause(ctx context.Context) error {
	if err := e.sleep(ctx, e.cfg.CallDelay); err != nil {
		return fmt.Errorf("%w: %w", errCancelled, err)
	}
	return nil
}

func (e *Engine) statement(ctx context.Context, p *Participant) {
	lang := e.corrector.Profile().Name
	entries := e.state.Entries()

	recent := ""
	if len(entries) > recentPointsCount {
		recent = transcript.RecentPoints(entries, recentPointsCount, recentPointsWidth)
	}
	prompt := statementPrompt(lang, p.Persona, p.Rounds, recent)
	rag := e.ragContext(ctx, prompt)

	resp, err := p.client.Submit(ctx, llm.Request{
		UserMessage:   prompt,
		History:       transcript.BuildHistory(entries, e.cfg.HistoryLimit),
		SystemMessage: systemPrompt(lang, e.context, rag, p.Persona),
	})
	if err != nil {
		e.reportError(fmt.Sprintf("%s failed to speak in round %d: %v", p.Name, p.Rounds, err))
		e.addEntry(transcript.FailureEntry(p.Name, p.Persona, p.Model.Name, p.Rounds, err, e.now()))
		return
	}
	e.state.AddTokens(resp.TokensUsed)

	if strings.TrimSpace(resp.Content) == "" {
		err := emptyReply(p.Model)
		e.reportError(fmt.Sprintf("%s failed to speak in round %d: %v", p.Name, p.Rounds, err))
		e.addEntry(transcript.FailureEntry(p.Name, p.Persona, p.Model.Name, p.Rounds, err, e.now()))
		return
	}

	content, extra := e.corrector.Ensure(ctx, resp.Content, p.client, statementCorrection(lang))
	e.state.AddTokens(extra)

	e.addEntry(transcript.Entry{
		Speaker:   p.Name,
		Persona:   p.Persona,
		Content:   content,
		Timestamp: e.now(),
		Round:     p.Rounds,
		Model:     p.Model.Name,
		Kind:      transcript.KindStatement,
	})
	p.Statements++
	e.state.countStatement()

	e.logger.Info("statement added",
		zap.String("participant", p.Key),
		zap.Int("round", p.Rounds),
		zap.Int("tokens", resp.TokensUsed+extra),
		zap.Int("correction_tokens", extra))
}

// emptyReply is the failure recorded when a backend answers with no text.
func emptyReply(model llm.ModelConfig) error {
	return &llm.Error{Kind: llm.KindBackendStatus, Provider: model.Provider, Model: model.Name, Message: "empty reply"}
}

func (e *Engine) recap(ctx context.Context, round int) {
	lang := e.corrector.Profile().Name
	m := e.moderator

	resp, err := m.client.Submit(ctx, llm.Request{
		UserMessage:   recapPrompt(lang, round),
		History:       transcript.BuildHistory(e.state.Entries(), e.cfg.HistoryLimit),
		SystemMessage: recapSystem,
	})
	if err != nil {
		e.reportError(fmt.Sprintf("round %d recap failed: %v", round, err))
		return
	}
	e.state.AddTokens(resp.TokensUsed)
	if strings.TrimSpace(resp.Content) == "" {
		e.reportError(fmt.Sprintf("round %d recap failed: %v", round, emptyReply(m.Model)))
		return
	}

	content, extra := e.corrector.Ensure(ctx, resp.Content, m.client, recapCorrection(lang))
	e.state.AddTokens(extra)

	e.addEntry(transcript.Entry{
		Speaker:   m.Name,
		Persona:   m.Persona + " (round recap)",
		Content:   content,
		Timestamp: e.now(),
		Round:     round,
		Model:     m.Model.Name,
		Kind:      transcript.KindRecap,
	})
	e.logger.Info("round recap added", zap.Int("round", round), zap.Int("tokens", resp.TokensUsed+extra))
}

func (e *Engine) finalReport(ctx context.Context, topic string, doc *summarize.Summary) (string, string) {
	profile := e.corrector.Profile()
	m := e.moderator

	digest := transcript.BuildDigest(e.state.Entries(), e.cfg.SummaryLogMaxTokens)
	if strings.TrimSpace(digest) == "" {
		e.logger.Warn("no valid statements, final summary skipped")
		return noStatementsReport(), ""
	}

	docText := ""
	if doc != nil {
		docText = doc.Text
	}
	prompt := finalReportPrompt(profile, topic, docText, digest)
	if n := utf8.RuneCountInString(prompt); e.cfg.PromptWarnThreshold > 0 && n > e.cfg.PromptWarnThreshold {
		e.logger.Warn("final summary prompt exceeds warning threshold",
			zap.Int("runes", n), zap.Int("threshold", e.cfg.PromptWarnThreshold))
	}

	resp, err := m.client.Submit(ctx, llm.Request{
		UserMessage:   prompt,
		SystemMessage: finalSystemPrompt(profile.Name),
		MaxTokens:     e.cfg.SummaryMaxTokens,
		Timeout:       e.cfg.SummaryTimeout,
	})
	if err != nil {
		e.reportError(fmt.Sprintf("final summary generation failed: %v", err))
		return failedReport(llm.Classify(err).String()), ""
	}
	e.state.AddTokens(resp.TokensUsed)

	report, extra := e.corrector.Ensure(ctx, resp.Content, m.client, finalCorrection(profile.Name))
	e.state.AddTokens(extra)
	e.logger.Info("final summary generated", zap.Int("tokens", resp.TokensUsed+extra))

	carryID := ""
	if issues := ExtractUnresolved(report, profile.UnresolvedHeading); issues != "" && e.carryOver != nil {
		id, err := e.carryOver.Save(topic, issues)
		if err != nil {
			e.logger.Warn("failed to save carry-over", zap.Error(err))
		}
		carryID = id
	}
	return report, carryID
}

// ragContext returns diversified passages for query, or "".
func (e *Engine) ragContext(ctx context.Context, query string) string {
	if e.retriever == nil {
		return ""
	}
	passages, err := e.retriever.Relevant(ctx, query, ragPassages, true)
	if err != nil {
		e.logger.Warn("failed to retrieve context", zap.Error(err))
		return ""
	}
	return strings.Join(passages, "\n")
}

func (e *Engine) addEntry(entry transcript.Entry) {
	e.state.AppendEntry(entry)
	e.notify(Event{Type: EventStatementAdded, Entry: &entry})
}

func (e *Engine) advance(p Phase) {
	if err := e.state.AdvancePhase(p); err != nil {
		e.logger.Error("invalid phase transition", zap.Error(err))
		return
	}
	e.logger.Info("meeting phase changed", zap.String("phase", string(p)))
	e.notify(Event{Type: EventPhaseChanged, Phase: p})
}

// reportError records a recoverable failure without changing the phase.
func (e *Engine) reportError(msg string) {
	e.logger.Error(msg)
	e.state.recordError(msg)
	e.notify(Event{Type: EventError, Message: msg})
}

// fail records a fatal failure and moves to PhaseError.
func (e *Engine) fail(msg string) {
	e.reportError(msg)
	if e.state.Phase().Terminal() {
		return
	}
	e.advance(PhaseError)
}

func (e *Engine) progress(detail string, current, total int) {
	e.notify(Event{Type: EventProgress, Detail: detail, Current: current, Total: total})
}

func (e *Engine) notify(ev Event) {
	ev.MeetingID = e.meetingID
	ev.Phase = cmp.Or(ev.Phase, e.state.Phase())
	ev.Time = e.now()
	for _, o := range e.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("observer panicked", zap.String("event", string(ev.Type)), zap.Any("panic", r))
				}
			}()
			o.Notify(ev)
		}()
	}
}
