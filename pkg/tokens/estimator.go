// Package tokens approximates how many model tokens a piece of text consumes.
//
// The counts are a budgeting heuristic. They follow a byte-pair encoding
// (cl100k_base by default) but do not include the per-message formatting
// overhead the API adds, so they will not match the backend bill exactly.
package tokens

import (
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = tokenizer.Cl100kBase

// Estimator returns a non-negative token count for a string.
type Estimator interface {
	Count(text string) int
}

// FuncEstimator adapts a plain function to Estimator.
type FuncEstimator func(text string) int

func (f FuncEstimator) Count(text string) int {
	n := f(text)
	if n < 0 {
		return 0
	}
	return n
}

// TiktokenEstimator counts BPE tokens. When no codec could be loaded, or
// encoding fails, it falls back to RuneEstimate.
type TiktokenEstimator struct {
	codec tokenizer.Codec
	name  string
}

var _ Estimator = (*TiktokenEstimator)(nil)

// NewTiktokenEstimator loads the codec for the given encoding name. An empty
// name selects DefaultEncoding.
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = string(DefaultEncoding)
	}
	c, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		log.Debug().Err(err).Str("encoding", encoding).Msg("could not load tokenizer, using rune estimate")
		return &TiktokenEstimator{name: encoding}
	}
	return &TiktokenEstimator{codec: c, name: encoding}
}

// ForModel resolves the codec registered for model, and falls back to the
// default encoding for models the tokenizer does not know about.
func ForModel(model string) *TiktokenEstimator {
	if model != "" {
		c, err := tokenizer.ForModel(tokenizer.Model(model))
		if err == nil {
			return &TiktokenEstimator{codec: c, name: model}
		}
		log.Debug().Err(err).Str("model", model).Msg("unknown model for tokenizer, using default encoding")
	}
	return NewTiktokenEstimator("")
}

// Name is the encoding or model name the estimator was created for.
func (e *TiktokenEstimator) Name() string {
	return e.name
}

func (e *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.codec == nil {
		return RuneEstimate(text)
	}
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return RuneEstimate(text)
	}
	return len(ids)
}

// RuneEstimate is the length based fallback: one token per four runes,
// rounded up.
func RuneEstimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
