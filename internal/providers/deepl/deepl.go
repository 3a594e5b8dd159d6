// Package deepl implements the DeepL translation adapter. DeepL only
// translates; transcription and evaluation route elsewhere.
package deepl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/pkg/httpclient"
)

// ProviderName identifies this adapter in routes and audit rows.
const ProviderName = "deepl"

const maxErrorBody = 2048

// Client is the DeepL adapter.
type Client struct {
	cfg    config.DeepLConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// New creates a DeepL adapter.
func New(cfg config.DeepLConfig, hc *httpclient.Client, logger *slog.Logger) *Client {
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

type translateResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate sends the batch to the DeepL translate endpoint. The API
// returns one translation per text parameter, in request order.
func (c *Client) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	form.Set("target_lang", strings.ToUpper(targetLang))
	if sourceLang != "" {
		form.Set("source_lang", strings.ToUpper(sourceLang))
	}
	form.Set("preserve_formatting", "1")

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, providers.NewError(ProviderName, providers.ErrKindPermanent, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, providers.NewError(ProviderName, providers.ErrKindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, providers.FromHTTPStatus(ProviderName, resp.StatusCode, resp.Header, string(snippet))
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, providers.NewError(ProviderName, providers.ErrKindPermanent,
			fmt.Errorf("decoding response: %w", err))
	}

	out := make([]string, 0, len(decoded.Translations))
	for _, t := range decoded.Translations {
		out = append(out, t.Text)
	}
	return out, nil
}
