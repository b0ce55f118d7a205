package conversation

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenEstimator prices a piece of text for context-window budgeting. The
// numbers only need to be stable and roughly proportional to real token
// counts; the trimming contract does not depend on tokenizer accuracy.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// WordCountEstimator is the default estimator: word count times a constant
// factor. Crude, dependency-free, and good enough to keep requests under a
// provider's context window.
type WordCountEstimator struct {
	// Factor defaults to 1.3 when zero.
	Factor float64
}

func (e WordCountEstimator) EstimateTokens(text string) int {
	factor := e.Factor
	if factor == 0 {
		factor = 1.3
	}
	return int(float64(len(strings.Fields(text))) * factor)
}

// TokenizerEstimator counts BPE tokens with a real tokenizer codec. Use it
// when the word-count approximation cuts too early or too late for your
// model.
type TokenizerEstimator struct {
	codec tokenizer.Codec
}

func NewTokenizerEstimator(encoding tokenizer.Encoding) (*TokenizerEstimator, error) {
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load tokenizer codec %s", encoding)
	}
	return &TokenizerEstimator{codec: codec}, nil
}

func (e *TokenizerEstimator) EstimateTokens(text string) int {
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer failed, falling back to word count")
		return WordCountEstimator{}.EstimateTokens(text)
	}
	return len(ids)
}

// History is the ordered, append-only message log of one conversation and
// the source of token-budgeted context views. It grows without bound; View
// trims what is handed to the model, never what is stored.
//
// History is owned by a single orchestrator and is not safe for concurrent
// use; the orchestrator's state gate is the exclusion boundary.
type History struct {
	messages  Conversation
	estimator TokenEstimator
}

type HistoryOption func(*History)

func WithEstimator(estimator TokenEstimator) HistoryOption {
	return func(h *History) {
		h.estimator = estimator
	}
}

func WithMessages(msgs ...*Message) HistoryOption {
	return func(h *History) {
		h.messages = append(h.messages, msgs...)
	}
}

func NewHistory(options ...HistoryOption) *History {
	ret := &History{
		estimator: WordCountEstimator{},
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (h *History) Add(msgs ...*Message) {
	h.messages = append(h.messages, msgs...)
}

func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the full history in insertion order.
func (h *History) Messages() Conversation {
	ret := make(Conversation, len(h.messages))
	copy(ret, h.messages)
	return ret
}

// View returns the messages to send to the model. With a nil budget the
// full history is returned. Otherwise messages are taken newest to oldest
// while their estimated cost fits the budget, and the kept suffix is
// returned in chronological order. The view is empty when even the newest
// message alone exceeds the budget; callers must tolerate that.
func (h *History) View(maxTokens *int) Conversation {
	if maxTokens == nil {
		return h.Messages()
	}

	totalTokens := 0
	kept := 0
	for i := len(h.messages) - 1; i >= 0; i-- {
		tokens := h.estimator.EstimateTokens(h.messages[i].Content)
		if totalTokens+tokens > *maxTokens {
			break
		}
		totalTokens += tokens
		kept++
	}

	if kept < len(h.messages) {
		log.Debug().
			Int("budget", *maxTokens).
			Int("kept", kept).
			Int("dropped", len(h.messages)-kept).
			Msg("trimmed context view")
	}

	ret := make(Conversation, kept)
	copy(ret, h.messages[len(h.messages)-kept:])
	return ret
}
