// Package openai implements the OpenAI-backed provider adapters:
// Whisper for transcription and chat completions for translation and
// evaluation. Calls are single-shot; the retrier owns all retry policy.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/pkg/httpclient"
)

// ProviderName identifies this adapter in routes and audit rows.
const ProviderName = "openai"

// maxErrorBody bounds how much of an error response is kept for logs.
const maxErrorBody = 2048

// Client is the OpenAI adapter. It implements all three capability
// interfaces.
type Client struct {
	cfg    config.OpenAIConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// New creates an OpenAI adapter.
func New(cfg config.OpenAIConfig, hc *httpclient.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = httpclient.NewWithDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return ProviderName }

// verbose_json response of the transcriptions endpoint.
type transcriptionResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the media file to the Whisper transcriptions
// endpoint and returns its timecoded segments.
func (c *Client) Transcribe(ctx context.Context, path string, languageHint string) (providers.Transcription, error) {
	var none providers.Transcription

	info, err := os.Stat(path)
	if err != nil {
		return none, providers.NewError(ProviderName, providers.ErrKindInputUnreadable, err)
	}
	if info.Size() == 0 {
		return none, providers.NewError(ProviderName, providers.ErrKindInputUnreadable,
			fmt.Errorf("source file is empty: %s", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return none, providers.NewError(ProviderName, providers.ErrKindInputUnreadable, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return none, providers.NewError(ProviderName, providers.ErrKindPermanent, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return none, providers.NewError(ProviderName, providers.ErrKindInputUnreadable, err)
	}
	fields := map[string]string{
		"model":           c.cfg.TranscribeModel,
		"response_format": "verbose_json",
	}
	if languageHint != "" {
		fields["language"] = languageHint
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return none, providers.NewError(ProviderName, providers.ErrKindPermanent, err)
		}
	}
	if err := mw.Close(); err != nil {
		return none, providers.NewError(ProviderName, providers.ErrKindPermanent, err)
	}

	var resp transcriptionResponse
	if err := c.post(ctx, "/audio/transcriptions", mw.FormDataContentType(), &body, &resp); err != nil {
		return none, err
	}

	result := providers.Transcription{
		Language: languageCode(resp.Language),
		Segments: make([]providers.TranscriptSegment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, providers.TranscriptSegment{
			StartMs: int64(s.Start * 1000),
			EndMs:   int64(s.End * 1000),
			Text:    strings.TrimSpace(s.Text),
		})
	}
	return result, nil
}

// languageCode maps Whisper's spelled-out language names to codes.
// Two-letter values pass through; anything unrecognized is dropped.
func languageCode(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "german":
		return "de"
	case "english":
		return "en"
	case "hebrew":
		return "he"
	case "yiddish":
		return "yi"
	case "polish":
		return "pl"
	case "russian":
		return "ru"
	default:
		if len(name) == 2 {
			return strings.ToLower(name)
		}
		return ""
	}
}

const translateSystemPrompt = `You are a professional translator working on oral history interview transcripts. Translate each numbered line into %s. Preserve the speaker's register, hesitations, and meaning. Reply with a JSON object of the form {"translations": ["...", "..."]} containing exactly one translation per input line, in order. Reply with JSON only.`

type translateReply struct {
	Translations []string `json:"translations"`
}

// Translate sends a batch of segment texts through the chat completions
// endpoint and returns one translation per input, in order.
func (c *Client) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var input strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&input, "%d. %s\n", i+1, t)
	}
	system := fmt.Sprintf(translateSystemPrompt, languageName(targetLang))
	if sourceLang != "" {
		system += fmt.Sprintf(" The source language is %s.", languageName(sourceLang))
	}

	content, err := c.chat(ctx, system, input.String())
	if err != nil {
		return nil, err
	}

	var reply translateReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, providers.NewError(ProviderName, providers.ErrKindPermanent,
			fmt.Errorf("unparseable translation reply: %w", err))
	}
	return reply.Translations, nil
}

const evaluateSystemPrompt = `You are a translation quality evaluator for oral history interview transcripts. Score the %s translation against the source segments on a 0-10 scale for: content_accuracy, speech_fidelity (register, hesitations, repairs), cultural_context, and reliability. Also give a composite score and list concrete issues, each with the zero-based segment index (-1 for document-level issues), a short kind, and a detail. Reply with JSON only, of the form {"composite": 0.0, "content_accuracy": 0.0, "speech_fidelity": 0.0, "cultural_context": 0.0, "reliability": 0.0, "issues": [{"segment": 0, "kind": "", "detail": ""}]}.`

// Evaluate scores a translation against its source through the chat
// completions endpoint.
func (c *Client) Evaluate(ctx context.Context, source, translated []string, targetLang string) (providers.Report, error) {
	var input strings.Builder
	input.WriteString("SOURCE SEGMENTS:\n")
	for i, s := range source {
		fmt.Fprintf(&input, "%d. %s\n", i, s)
	}
	input.WriteString("\nTRANSLATED SEGMENTS:\n")
	for i, s := range translated {
		fmt.Fprintf(&input, "%d. %s\n", i, s)
	}

	content, err := c.chat(ctx, fmt.Sprintf(evaluateSystemPrompt, languageName(targetLang)), input.String())
	if err != nil {
		return providers.Report{}, err
	}

	var report providers.Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return providers.Report{}, providers.NewError(ProviderName, providers.ErrKindPermanent,
			fmt.Errorf("unparseable evaluation reply: %w", err))
	}
	return report, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// chat runs one chat completion and returns the first choice's content.
func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &chatFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", providers.NewError(ProviderName, providers.ErrKindPermanent, err)
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", providers.NewError(ProviderName, providers.ErrKindPermanent,
			errors.New("chat response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// post issues one authenticated POST and decodes the JSON response into
// out. Non-2xx statuses are classified through the shared taxonomy.
func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return providers.NewError(ProviderName, providers.ErrKindPermanent, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return providers.NewError(ProviderName, providers.ErrKindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return providers.FromHTTPStatus(ProviderName, resp.StatusCode, resp.Header, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providers.NewError(ProviderName, providers.ErrKindPermanent,
			fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// languageName expands a target code for prompts; unknown codes pass
// through unchanged.
func languageName(code string) string {
	switch code {
	case "en":
		return "English"
	case "de":
		return "German"
	case "he":
		return "Hebrew"
	default:
		return code
	}
}
