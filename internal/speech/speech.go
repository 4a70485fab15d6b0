// Package speech turns the closing letter into playable audio.
package speech

import (
	"context"
	"encoding/base64"
	"log/slog"
	"path"
	"strings"
)

// Audio is a rendered letter. At most one of URL and Base64 is set; both are
// empty when rendering failed.
type Audio struct {
	URL    string `json:"audioUrl,omitempty"`
	Base64 string `json:"audioBase64,omitempty"`
}

// Synthesizer converts text to mp3 bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// LetterVoice synthesizes a letter and, when an uploader is set, publishes it.
type LetterVoice struct {
	synth    Synthesizer
	uploader Uploader
	prefix   string
	logger   *slog.Logger
}

// NewLetterVoice creates a LetterVoice. uploader may be nil, in which case the
// audio is returned inline.
func NewLetterVoice(synth Synthesizer, uploader Uploader, prefix string, logger *slog.Logger) *LetterVoice {
	if logger == nil {
		logger = slog.Default()
	}
	return &LetterVoice{
		synth:    synth,
		uploader: uploader,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
	}
}

// Render never fails: any error is logged and yields empty Audio.
func (v *LetterVoice) Render(ctx context.Context, sessionID, text string) Audio {
	if v == nil || v.synth == nil || strings.TrimSpace(text) == "" {
		return Audio{}
	}

	data, err := v.synth.Synthesize(ctx, text)
	if err != nil {
		v.logger.Warn("Letter synthesis failed", "session_id", sessionID, "error", err)
		return Audio{}
	}
	if len(data) == 0 {
		v.logger.Warn("Letter synthesis returned no audio", "session_id", sessionID)
		return Audio{}
	}

	if v.uploader == nil {
		return Audio{Base64: base64.StdEncoding.EncodeToString(data)}
	}

	url, err := v.uploader.Upload(ctx, v.objectKey(sessionID), data, "audio/mpeg")
	if err != nil {
		v.logger.Warn("Letter upload failed", "session_id", sessionID, "error", err)
		return Audio{}
	}
	v.logger.Info("Letter voice uploaded", "session_id", sessionID, "url", url)
	return Audio{URL: url}
}

func (v *LetterVoice) objectKey(sessionID string) string {
	return path.Join(v.prefix, sessionID, "letter_voice.mp3")
}
