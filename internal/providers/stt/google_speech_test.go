package stt

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
)

func TestRecognitionConfig(t *testing.T) {
	c := recognitionConfig(FormatPhone, "en-US")
	assert.Equal(t, speechpb.RecognitionConfig_MULAW, c.Encoding)
	assert.Equal(t, int32(8000), c.SampleRateHertz)
	assert.Equal(t, "phone_call", c.Model)

	c = recognitionConfig(FormatWAV, "es-ES")
	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, c.Encoding)
	assert.Equal(t, int32(16000), c.SampleRateHertz)
	assert.Equal(t, "es-ES", c.LanguageCode)

	c = recognitionConfig("", "en-US")
	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, c.Encoding)

	c = recognitionConfig(FormatOGG, "en-US")
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, c.Encoding)
}
