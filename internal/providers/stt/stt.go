package stt

import "context"

// AudioFormat names the encoding of an inbound voice message.
type AudioFormat string

const (
	// FormatPhone is 8kHz mu-law, what telephony webhooks deliver.
	FormatPhone AudioFormat = "mulaw"
	// FormatWAV is 16kHz LINEAR16 from browsers and voice notes.
	FormatWAV AudioFormat = "wav"
	FormatOGG AudioFormat = "ogg"
)

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, format AudioFormat, language string) (text string, confidence float64, err error)
	Close() error
}
