// Package providers defines the capability interfaces for external speech
// and language services, the error taxonomy adapters report through, and
// the retrier that owns all retry, backoff, and fallback policy.
//
// Adapters are thin: one provider call per method, classified errors, no
// internal retries. Everything about when to call again, how long to wait,
// and when to switch providers lives in the Retrier.
package providers

import (
	"context"
	"fmt"
	"sync"
)

// TranscriptSegment is one timecoded utterance returned by a
// transcription provider.
type TranscriptSegment struct {
	// StartMs is the segment start offset in milliseconds.
	StartMs int64 `json:"start_ms"`
	// EndMs is the segment end offset in milliseconds.
	EndMs int64 `json:"end_ms"`
	// Text is the verbatim transcribed text.
	Text string `json:"text"`
}

// Transcription is the result of one transcription call.
type Transcription struct {
	// Language is the provider's file-level language code, empty when
	// the provider reports none. It seeds per-segment detection for
	// segments too short to detect on their own.
	Language string `json:"language,omitempty"`

	// Segments are the timecoded utterances in time order.
	Segments []TranscriptSegment `json:"segments"`
}

// TranscriptionProvider converts a media file into timecoded segments.
type TranscriptionProvider interface {
	// Name returns the provider identifier used in routing and audit rows.
	Name() string

	// Transcribe reads the media file at path and returns its transcription.
	// The language hint may be empty.
	Transcribe(ctx context.Context, path string, languageHint string) (Transcription, error)
}

// TranslationProvider translates a batch of segment texts into one
// target language.
type TranslationProvider interface {
	// Name returns the provider identifier used in routing and audit rows.
	Name() string

	// Translate returns one translation per input text, in input order.
	// sourceLang may be empty when the source language is unknown.
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// Issue is one problem an evaluation provider flagged in a translation.
type Issue struct {
	// Segment is the zero-based index of the affected segment, or -1 when
	// the issue applies to the whole document.
	Segment int `json:"segment"`
	// Kind is a short machine-readable issue category.
	Kind string `json:"kind"`
	// Detail is the human-readable description.
	Detail string `json:"detail"`
}

// Report is the structured verdict of an evaluation provider. All scores
// are on a 0 to 10 scale.
type Report struct {
	Composite       float64 `json:"composite"`
	ContentAccuracy float64 `json:"content_accuracy"`
	SpeechFidelity  float64 `json:"speech_fidelity"`
	CulturalContext float64 `json:"cultural_context"`
	Reliability     float64 `json:"reliability"`
	Issues          []Issue `json:"issues,omitempty"`
}

// EvaluationProvider scores a translation against its source transcript.
type EvaluationProvider interface {
	// Name returns the provider identifier used in routing and audit rows.
	Name() string

	// Evaluate scores the translated segments against the source segments
	// for the given target language. Both slices are index-aligned.
	Evaluate(ctx context.Context, source, translated []string, targetLang string) (Report, error)
}

// Registry holds the configured provider adapters by name. Lookups are by
// (name, capability); a provider may implement several capabilities.
type Registry struct {
	mu            sync.RWMutex
	transcription map[string]TranscriptionProvider
	translation   map[string]TranslationProvider
	evaluation    map[string]EvaluationProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transcription: make(map[string]TranscriptionProvider),
		translation:   make(map[string]TranslationProvider),
		evaluation:    make(map[string]EvaluationProvider),
	}
}

// RegisterTranscription registers a transcription adapter under its name.
func (r *Registry) RegisterTranscription(p TranscriptionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcription[p.Name()] = p
}

// RegisterTranslation registers a translation adapter under its name.
func (r *Registry) RegisterTranslation(p TranslationProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translation[p.Name()] = p
}

// RegisterEvaluation registers an evaluation adapter under its name.
func (r *Registry) RegisterEvaluation(p EvaluationProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluation[p.Name()] = p
}

// Transcription returns the named transcription adapter.
func (r *Registry) Transcription(name string) (TranscriptionProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.transcription[name]
	if !ok {
		return nil, fmt.Errorf("no transcription provider %q", name)
	}
	return p, nil
}

// Translation returns the named translation adapter.
func (r *Registry) Translation(name string) (TranslationProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.translation[name]
	if !ok {
		return nil, fmt.Errorf("no translation provider %q", name)
	}
	return p, nil
}

// Evaluation returns the named evaluation adapter.
func (r *Registry) Evaluation(name string) (EvaluationProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.evaluation[name]
	if !ok {
		return nil, fmt.Errorf("no evaluation provider %q", name)
	}
	return p, nil
}
