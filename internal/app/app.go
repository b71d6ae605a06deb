// Package app wires the configuration into the collaborators a meeting
// needs. The CLI and the HTTP server share one App.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"llm-meeting/config"
	"llm-meeting/internal/archive"
	"llm-meeting/internal/carryover"
	"llm-meeting/internal/extract"
	"llm-meeting/internal/language"
	"llm-meeting/internal/llm"
	"llm-meeting/internal/logging"
	"llm-meeting/internal/meeting"
	"llm-meeting/internal/retrieval"
	"llm-meeting/internal/summarize"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Factory    *llm.Factory
	Summarizer *summarize.Summarizer
	Extractor  *extract.Extractor
	CarryOvers *carryover.Store
	Archive    *archive.Store

	corrector *language.Corrector
	enhancer  meeting.PersonaEnhancer
	cache     *summarize.Cache
}

// Option adjusts an App after the defaults are built. Tests use it to swap
// in stub collaborators.
type Option func(*App)

// WithFactoryOptions rebuilds the client factory with opts.
func WithFactoryOptions(opts ...llm.FactoryOption) Option {
	return func(a *App) {
		a.Factory = llm.NewFactory(a.Config, append([]llm.FactoryOption{llm.WithFactoryLogger(a.Logger.Named("llm"))}, opts...)...)
	}
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	logger = logging.OrNop(logger)

	profile, err := language.Lookup(cfg.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("target language: %w", err)
	}

	summarizerOpts := []summarize.Option{
		summarize.WithLogger(logger.Named("summarize")),
		summarize.WithOutputLanguage(profile.Name),
	}
	var cache *summarize.Cache
	if cfg.SummaryCacheTTL > 0 {
		cache = summarize.NewCache(cfg.SummaryCacheTTL)
		summarizerOpts = append(summarizerOpts, summarize.WithCache(cache))
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Factory:    llm.NewFactory(cfg, llm.WithFactoryLogger(logger.Named("llm"))),
		Summarizer: summarize.New(cfg, summarizerOpts...),
		Extractor:  extract.New(cfg, extract.WithLogger(logger.Named("extract"))),
		CarryOvers: carryover.NewStore(cfg.CarryOverDir, logger.Named("carryover")),
		Archive:    archive.NewStore(cfg.DataDir, logger.Named("archive")),
		corrector:  language.NewCorrector(profile, language.ThresholdsFromConfig(cfg), logger.Named("language")),
		cache:      cache,
	}
	for _, opt := range opts {
		opt(a)
	}

	if removed, err := a.CarryOvers.Cleanup(); err != nil {
		logger.Warn("carry-over cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		logger.Info("carry-over cleanup finished", zap.Int("removed", len(removed)))
	}

	a.enhancer = a.personaEnhancer()
	return a, nil
}

// Close drops cached document summaries.
func (a *App) Close() {
	if a.cache != nil {
		a.Logger.Debug("clearing summary cache", zap.Int("entries", a.cache.Len()))
		a.cache.Clear()
	}
}

// personaEnhancer returns nil unless enhancement is enabled and an OpenAI
// key is present.
func (a *App) personaEnhancer() meeting.PersonaEnhancer {
	if !a.Config.PersonaEnhancement || a.Config.OpenAIAPIKey == "" {
		a.Logger.Info("persona enhancement disabled")
		return nil
	}
	inv, err := a.Factory.Create(llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: a.Config.PersonaModel})
	if err != nil {
		a.Logger.Warn("persona enhancer unavailable", zap.Error(err))
		return nil
	}
	return meeting.NewLLMPersonaEnhancer(inv)
}

// NewEngine returns an engine with its own retrieval index.
func (a *App) NewEngine(opts ...meeting.Option) *meeting.Engine {
	base := []meeting.Option{
		meeting.WithLogger(a.Logger.Named("meeting")),
		meeting.WithExtractor(a.Extractor),
		meeting.WithRetriever(retrieval.New(retrieval.WithLogger(a.Logger.Named("retrieval")))),
		meeting.WithCarryOverStore(a.CarryOvers),
		meeting.WithSummarizer(a.Summarizer),
		meeting.WithCorrector(a.corrector),
	}
	if a.enhancer != nil {
		base = append(base, meeting.WithPersonaEnhancer(a.enhancer))
	}
	return meeting.New(a.Config, a.Factory, append(base, opts...)...)
}

// RunRequest is one meeting to hold.
type RunRequest struct {
	Settings    meeting.Settings
	CarryOverID string
	Observers   []meeting.Observer
}

// Run holds a meeting and archives the result. The error is non-nil only
// when the meeting could not be set up; failures during the meeting are
// reported in the result.
func (a *App) Run(ctx context.Context, req RunRequest) (*meeting.Result, error) {
	settings := req.Settings
	settings.ApplyDefaults(a.Config)

	var opts []meeting.Option
	if req.CarryOverID != "" {
		rec, err := a.CarryOvers.Load(req.CarryOverID)
		if err != nil {
			return nil, fmt.Errorf("failed to load carry-over %s: %w", req.CarryOverID, err)
		}
		opts = append(opts, meeting.WithCarryOverContext(rec.UnresolvedIssues))
	}
	for _, o := range req.Observers {
		opts = append(opts, meeting.WithObserver(o))
	}

	result := a.NewEngine(opts...).Run(ctx, settings)
	if err := a.Archive.Save(result); err != nil {
		a.Logger.Warn("failed to archive meeting", zap.String("meeting_id", result.ID), zap.Error(err))
	}
	return result, nil
}
