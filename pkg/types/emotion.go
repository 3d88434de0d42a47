package types

// DominantUndetermined is the dominant-emotion label used when no face
// was detected (face confidence 0).
const DominantUndetermined = "undetermined"

// EmotionLabels lists the seven basic emotions, in the canonical order
// used by the intensity vector.
var EmotionLabels = [7]string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// EmotionSample is one facial-emotion inference result. The seven
// intensities are independent confidences in [0,1], not a distribution.
type EmotionSample struct {
	SessionID int64   `json:"session_id"`
	Timestamp float64 `json:"timestamp"`

	Angry    float64 `json:"angry"`
	Disgust  float64 `json:"disgust"`
	Fear     float64 `json:"fear"`
	Happy    float64 `json:"happy"`
	Sad      float64 `json:"sad"`
	Surprise float64 `json:"surprise"`
	Neutral  float64 `json:"neutral"`

	// DominantEmotion equals the argmax of the seven intensities, or
	// DominantUndetermined when FaceConfidence is 0.
	DominantEmotion string  `json:"dominant_emotion"`
	FaceConfidence  float64 `json:"face_confidence"`

	Age    *int    `json:"age,omitempty"`
	Gender *string `json:"gender,omitempty"`
}

// Intensities returns the seven emotion intensities in canonical order.
func (e *EmotionSample) Intensities() [7]float64 {
	return [7]float64{e.Angry, e.Disgust, e.Fear, e.Happy, e.Sad, e.Surprise, e.Neutral}
}

// Normalize clamps every intensity and the face confidence to [0,1] and
// recomputes DominantEmotion. A sample with zero face confidence gets
// the undetermined label regardless of the intensity vector, so the
// timeline stays dense through no-face frames.
func (e *EmotionSample) Normalize() {
	e.Angry = Clamp01(e.Angry)
	e.Disgust = Clamp01(e.Disgust)
	e.Fear = Clamp01(e.Fear)
	e.Happy = Clamp01(e.Happy)
	e.Sad = Clamp01(e.Sad)
	e.Surprise = Clamp01(e.Surprise)
	e.Neutral = Clamp01(e.Neutral)
	e.FaceConfidence = Clamp01(e.FaceConfidence)

	if e.FaceConfidence == 0 {
		e.DominantEmotion = DominantUndetermined
		return
	}
	e.DominantEmotion = dominantOf(e.Intensities())
}

// dominantOf returns the label of the maximum intensity. Ties resolve
// to the earlier label in canonical order.
func dominantOf(v [7]float64) string {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return EmotionLabels[best]
}

// Clamp01 clamps v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
