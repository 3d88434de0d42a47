package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmotionSample_NormalizeClampsIntensities(t *testing.T) {
	sample := &EmotionSample{
		Angry:          -0.5,
		Disgust:        1.7,
		Fear:           0.3,
		Happy:          0.9,
		Sad:            0.1,
		Surprise:       2.0,
		Neutral:        0.2,
		FaceConfidence: 0.95,
	}

	sample.Normalize()

	assert.Equal(t, 0.0, sample.Angry)
	assert.Equal(t, 1.0, sample.Disgust)
	assert.Equal(t, 1.0, sample.Surprise)
	assert.Equal(t, 0.95, sample.FaceConfidence)
	// disgust and surprise both clamp to 1.0; earlier canonical label wins
	assert.Equal(t, "disgust", sample.DominantEmotion)
}

func TestEmotionSample_NormalizeDominantIsArgmax(t *testing.T) {
	sample := &EmotionSample{
		Happy:          0.8,
		Neutral:        0.4,
		Sad:            0.1,
		FaceConfidence: 0.7,
	}

	sample.Normalize()

	assert.Equal(t, "happy", sample.DominantEmotion)
}

func TestEmotionSample_NormalizeNoFaceIsUndetermined(t *testing.T) {
	sample := &EmotionSample{
		Happy:           0.9,
		DominantEmotion: "happy",
		FaceConfidence:  0,
	}

	sample.Normalize()

	assert.Equal(t, DominantUndetermined, sample.DominantEmotion)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-3))
	assert.Equal(t, 1.0, Clamp01(42))
	assert.Equal(t, 0.5, Clamp01(0.5))
}
