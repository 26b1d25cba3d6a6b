// Package condenser implements the Context Condenser: a strategy-selecting
// compressor that fits a message history into a token budget by truncating
// the oldest messages, summarizing them via an LLM, or choosing between the
// two adaptively based on how far over budget the history runs.
package condenser

import (
	"context"
	"math"
	"strings"

	"github.com/cellmind/agentcore/runtime/model"
)

// Strategy selects how Condense compresses an over-budget history.
type Strategy string

const (
	// StrategyNone means no compression was needed.
	StrategyNone Strategy = "none"
	// StrategyTruncate drops the oldest messages until the history fits.
	StrategyTruncate Strategy = "truncate"
	// StrategySummarize replaces all but the last KeepLast messages with a
	// single LLM-produced summary message.
	StrategySummarize Strategy = "summarize"
	// StrategyAdaptive picks Truncate or Summarize based on how much the
	// history overruns the budget. It is the default when Strategy is empty.
	StrategyAdaptive Strategy = "adaptive"
)

const defaultTokensPerWord = 1.3
const defaultKeepLast = 10

// Summarizer produces a short natural-language summary of the messages it's
// given, typically via an LLM call through the gateway.
type Summarizer func(ctx context.Context, messages []model.Message) (string, error)

// Input is what Condense needs to compress one message history.
type Input struct {
	Messages []model.Message
	// TargetTokens is the token budget the result must fit within.
	TargetTokens int
	// Strategy forces a specific strategy; empty selects Adaptive.
	Strategy Strategy
	// KeepLast is how many of the most recent messages Summarize keeps
	// verbatim; 0 uses the default of 10.
	KeepLast int
	// TokensPerWord overrides the default 1.3 words-to-tokens estimate for
	// providers whose tokenizer runs noticeably richer or leaner than that.
	TokensPerWord float64
}

// Stats describes what Condense did.
type Stats struct {
	OriginalTokens   int
	CompressedTokens int
	StrategyUsed     Strategy
	MessagesKept     int
	MessagesRemoved  int
	Ratio            float64
}

// EstimateTokens approximates token count as word count times tokensPerWord
// (1.3 if zero), rounded up.
func EstimateTokens(messages []model.Message, tokensPerWord float64) int {
	if tokensPerWord == 0 {
		tokensPerWord = defaultTokensPerWord
	}
	words := 0
	for _, m := range messages {
		words += len(strings.Fields(m.Content))
	}
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// Condense returns messages fitting within in.TargetTokens, and stats
// describing what was done. If the history already fits, it is returned
// unchanged with StrategyNone.
func Condense(ctx context.Context, in Input, summarize Summarizer) ([]model.Message, Stats) {
	tokensPerWord := in.TokensPerWord
	if tokensPerWord == 0 {
		tokensPerWord = defaultTokensPerWord
	}
	keepLast := in.KeepLast
	if keepLast <= 0 {
		keepLast = defaultKeepLast
	}

	original := EstimateTokens(in.Messages, tokensPerWord)
	if original <= in.TargetTokens {
		return in.Messages, Stats{
			OriginalTokens:   original,
			CompressedTokens: original,
			StrategyUsed:     StrategyNone,
			MessagesKept:     len(in.Messages),
			Ratio:            ratio(original, original),
		}
	}

	strategy := resolveStrategy(in.Strategy, in.TargetTokens, original)

	if strategy == StrategySummarize {
		if messages, stats, ok := trySummarize(ctx, in.Messages, summarize, tokensPerWord, original, keepLast, in.TargetTokens); ok {
			return messages, stats
		}
	}

	return truncate(in.Messages, in.TargetTokens, tokensPerWord, original)
}

func resolveStrategy(requested Strategy, target, original int) Strategy {
	switch requested {
	case StrategyTruncate, StrategySummarize:
		return requested
	default:
		if ratio(target, original) >= 0.5 {
			return StrategyTruncate
		}
		return StrategySummarize
	}
}

func truncate(messages []model.Message, target int, tokensPerWord float64, original int) ([]model.Message, Stats) {
	kept := messages
	for len(kept) > 0 && EstimateTokens(kept, tokensPerWord) > target {
		kept = kept[1:]
	}
	compressed := EstimateTokens(kept, tokensPerWord)
	return kept, Stats{
		OriginalTokens:   original,
		CompressedTokens: compressed,
		StrategyUsed:     StrategyTruncate,
		MessagesKept:     len(kept),
		MessagesRemoved:  len(messages) - len(kept),
		Ratio:            ratio(compressed, original),
	}
}

// trySummarize keeps the last keepLast messages verbatim and replaces the
// rest with a single summary message. It reports ok=false (letting the
// caller fall back to Truncate) when there's no summarizer, nothing to
// summarize, the summarizer fails, or the result still overruns target.
func trySummarize(ctx context.Context, messages []model.Message, summarize Summarizer, tokensPerWord float64, original, keepLast, target int) ([]model.Message, Stats, bool) {
	if summarize == nil || len(messages) <= keepLast {
		return nil, Stats{}, false
	}

	head := messages[:len(messages)-keepLast]
	tail := messages[len(messages)-keepLast:]

	summary, err := summarize(ctx, head)
	if err != nil {
		return nil, Stats{}, false
	}

	condensed := make([]model.Message, 0, len(tail)+1)
	condensed = append(condensed, model.Message{
		Role:    model.RoleSystem,
		Content: "[Previous conversation summary] " + summary,
	})
	condensed = append(condensed, tail...)

	compressed := EstimateTokens(condensed, tokensPerWord)
	if compressed > target {
		return nil, Stats{}, false
	}

	return condensed, Stats{
		OriginalTokens:   original,
		CompressedTokens: compressed,
		StrategyUsed:     StrategySummarize,
		MessagesKept:     len(condensed),
		MessagesRemoved:  len(head),
		Ratio:            ratio(compressed, original),
	}, true
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 1.0
	}
	return float64(numerator) / float64(denominator)
}
