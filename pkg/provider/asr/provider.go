// Package asr defines the Provider interface for speech recognition backends.
//
// A provider turns one complete recording into a [types.Transcript]. Word
// timings, word confidences and segment confidences are optional: a backend
// that cannot report them leaves the fields zero and the scoring packages
// degrade accordingly.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation; the caller sets the deadline.
package asr

import (
	"context"
	"errors"
	"mime"
	"strings"

	"github.com/MrWong99/cadence/pkg/types"
)

// ErrEmptyAudio is returned by Transcribe when the upload has no bytes.
var ErrEmptyAudio = errors.New("asr: empty audio")

// Content types understood by the adapters. Anything else is forwarded to
// the backend unchanged.
const (
	ContentTypeWAV = "audio/wav"
	ContentTypePCM = "audio/pcm" // raw int16 LE mono
	ContentTypeL16 = "audio/l16" // RFC 2586 alias of ContentTypePCM
)

// Provider is the abstraction over any ASR backend.
type Provider interface {
	// Transcribe recognises audio, whose encoding is described by the MIME
	// contentType. It returns ErrEmptyAudio for an empty upload.
	Transcribe(ctx context.Context, audio []byte, contentType string) (*types.Transcript, error)
}

// IsRawPCM reports whether contentType names headerless int16 PCM.
func IsRawPCM(contentType string) bool {
	mt := mediaType(contentType)
	return mt == ContentTypePCM || mt == ContentTypeL16
}

// IsWAV reports whether contentType names a RIFF/WAVE container.
func IsWAV(contentType string) bool {
	switch mediaType(contentType) {
	case ContentTypeWAV, "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return true
	}
	return false
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
