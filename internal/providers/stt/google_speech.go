package stt

import (
	"context"
	"errors"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

var ErrNoSpeech = errors.New("stt: no speech recognised")

type GoogleSpeech struct {
	c *speech.Client
}

func NewGoogleSpeech(ctx context.Context, credentialsFile string) (*GoogleSpeech, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func recognitionConfig(format AudioFormat, language string) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	switch format {
	case FormatPhone:
		cfg.Encoding = speechpb.RecognitionConfig_MULAW
		cfg.SampleRateHertz = 8000
		cfg.Model = "phone_call"
		cfg.UseEnhanced = true
	case FormatOGG:
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		cfg.SampleRateHertz = 16000
	default:
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
		cfg.SampleRateHertz = 16000
	}
	return cfg
}

// language example: "en-US", "es-ES"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, format AudioFormat, language string) (string, float64, error) {
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig(format, language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, err
	}

	// each result is a consecutive segment; keep the top alternative of each
	var parts []string
	var confSum float64
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		confSum += float64(r.Alternatives[0].Confidence)
	}
	if len(parts) == 0 {
		return "", 0, ErrNoSpeech
	}
	return strings.Join(parts, " "), confSum / float64(len(parts)), nil
}
