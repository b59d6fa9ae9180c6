package planner

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	defaultEncoder *tiktoken.Tiktoken
	encoderOnce    sync.Once
	encoderErr     error
)

// getEncoder returns the shared tiktoken encoder, initializing it lazily.
// cl100k_base is a reasonable approximation for the locally hosted models
// the assistant talks to.
func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		defaultEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return defaultEncoder, encoderErr
}

// PreciseWeigher weighs patches by actual token count instead of the
// byte-ratio heuristic. Falls back to the heuristic when the encoder
// cannot be initialized.
type PreciseWeigher struct {
	fallback ByteRatioWeigher
}

// NewPreciseWeigher constructs a tokenizer-backed weigher with the given
// heuristic fallback ratio.
func NewPreciseWeigher(fallbackCharsPerToken float64) PreciseWeigher {
	return PreciseWeigher{fallback: NewByteRatioWeigher(fallbackCharsPerToken)}
}

func (w PreciseWeigher) Weight(patch string) int {
	enc, err := getEncoder()
	if err != nil {
		return w.fallback.Weight(patch)
	}
	return len(enc.Encode(patch, nil, nil))
}
