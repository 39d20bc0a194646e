package job

import (
	"fmt"

	videogen "github.com/keerthanap8898/TextToVideoAPI"
)

// Quality selects the generation quality tier. Higher tiers run more
// diffusion steps and take proportionally longer.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Resolution bounds accepted by the workers.
const (
	MinDimension = 256
	MaxDimension = 1920
	MinFPS       = 1
	MaxFPS       = 60
	MinSeconds   = 1
	MaxSeconds   = 60
	MaxPromptLen = 2000
)

// Params are the immutable generation parameters captured at submission.
type Params struct {
	Prompt          string  `json:"prompt"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             int     `json:"fps"`
	DurationSeconds int     `json:"duration_seconds"`
	Quality         Quality `json:"quality"`
	// Seed pins the generation for reproducibility. Zero means random.
	Seed int64 `json:"seed,omitempty"`
}

// Validate checks all parameter ranges. A failure wraps
// videogen.ErrInvalidParams and must reject the submission, invalid
// params are never dispatched and never retried.
func (p Params) Validate() error {
	switch {
	case p.Prompt == "":
		return fmt.Errorf("%w: empty prompt", videogen.ErrInvalidParams)
	case len(p.Prompt) > MaxPromptLen:
		return fmt.Errorf("%w: prompt exceeds %d characters", videogen.ErrInvalidParams, MaxPromptLen)
	case p.Width < MinDimension || p.Width > MaxDimension:
		return fmt.Errorf("%w: width %d outside [%d, %d]", videogen.ErrInvalidParams, p.Width, MinDimension, MaxDimension)
	case p.Height < MinDimension || p.Height > MaxDimension:
		return fmt.Errorf("%w: height %d outside [%d, %d]", videogen.ErrInvalidParams, p.Height, MinDimension, MaxDimension)
	case p.FPS < MinFPS || p.FPS > MaxFPS:
		return fmt.Errorf("%w: fps %d outside [%d, %d]", videogen.ErrInvalidParams, p.FPS, MinFPS, MaxFPS)
	case p.DurationSeconds < MinSeconds || p.DurationSeconds > MaxSeconds:
		return fmt.Errorf("%w: duration %ds outside [%d, %d]", videogen.ErrInvalidParams, p.DurationSeconds, MinSeconds, MaxSeconds)
	}

	switch p.Quality {
	case QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("%w: unknown quality %q", videogen.ErrInvalidParams, p.Quality)
	}

	return nil
}
