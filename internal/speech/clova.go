package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
)

// maxAudioBytes caps the response body read from the TTS API.
const maxAudioBytes = 10 << 20

// ClovaVoice calls the premium TTS API: a form POST authenticated by key-id
// and key headers that answers with mp3 bytes.
type ClovaVoice struct {
	url          string
	clientID     string
	clientSecret string
	speaker      string
	httpClient   *http.Client
}

// NewClovaVoice creates a TTS client from cfg.
func NewClovaVoice(cfg config.SpeechConfig) *ClovaVoice {
	return &ClovaVoice{
		url:          cfg.URL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		speaker:      cfg.Speaker,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize returns the mp3 rendering of text.
func (c *ClovaVoice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	form := url.Values{}
	form.Set("speaker", c.speaker)
	form.Set("volume", "0")
	form.Set("speed", "0")
	form.Set("pitch", "0")
	form.Set("format", "mp3")
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-NCP-APIGW-API-KEY-ID", c.clientID)
	req.Header.Set("X-NCP-APIGW-API-KEY", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	return data, nil
}
