package agent

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/events"
	"github.com/ForSeason/chimerai/pkg/llm"
)

// Fragment is one element of a HandleStream channel: a piece of assistant
// text, or an error. An error matching llm.ErrMalformedFrame covers a single
// skipped frame and the stream keeps going; any other error is terminal and
// is the last fragment before the channel closes.
type Fragment struct {
	Text string
	Err  error
}

// HandleStream is Handle with live output. The returned channel carries the
// assistant's text as it arrives and closes when the turn is over; the
// goroutine feeding it owns the agent until then. Inspect State and Err
// after the channel closes to tell a completed turn from a failed one.
func (a *Agent) HandleStream(ctx context.Context, text string) (<-chan Fragment, error) {
	if a.state != StateReady && a.state != StateWaitingForUserInput {
		return nil, errors.Wrapf(ErrNotReady, "agent state is %s", a.state)
	}
	a.state = StateProcessing
	a.err = nil

	log.Debug().
		Str("conversation_id", a.conversationID.String()).
		Int("history_len", a.history.Len()).
		Msg("handling user message with streaming")

	a.history.Add(conversation.NewUserMessage(text))

	out := make(chan Fragment)
	go a.streamConversation(events.WithEventSinks(ctx, a.sinks...), out)
	return out, nil
}

// roundOutcome is what one fully consumed decision stream amounts to: the
// accumulated text and the newest call map seen (nil when the model did not
// request tools).
type roundOutcome struct {
	text  string
	calls conversation.ToolCalls
}

func (a *Agent) streamConversation(ctx context.Context, out chan<- Fragment) {
	defer close(out)

	view := a.history.View(a.config.MaxTokens)
	specs := a.toolSpecs()

	rounds := 0
	retries := 0
	for rounds < a.config.MaxTurns {
		metadata := a.roundMetadata(rounds)
		events.PublishEventToContext(ctx, events.NewStartEvent(metadata))

		outcome, err := a.streamRound(ctx, metadata, view, specs, out)
		if err != nil {
			if a.shouldRetry(ctx, err, retries) {
				retries++
				log.Debug().Err(err).
					Int("attempt", retries).
					Int("max_retries", a.config.Retry.MaxRetries).
					Msg("decision stream failed, retrying")
				if waitErr := a.waitRetryDelay(ctx); waitErr != nil {
					a.failStream(ctx, metadata, waitErr, out)
					return
				}
				continue
			}
			if errors.Is(err, ErrTimeout) {
				err = &timeoutError{attempts: retries + 1}
			}
			a.failStream(ctx, metadata, err, out)
			return
		}

		if len(outcome.calls) > 0 {
			a.runToolRound(ctx, metadata, llm.ExecuteTool(outcome.text, outcome.calls))
			view = a.history.View(a.config.MaxTokens)
			rounds++
			continue
		}

		a.history.Add(conversation.NewAssistantMessage(outcome.text, nil))
		events.PublishEventToContext(ctx, events.NewFinalEvent(metadata, outcome.text))
		a.state = StateReady
		return
	}

	a.failStream(ctx, a.roundMetadata(a.config.MaxTurns),
		errors.Wrapf(ErrRetryExhausted, "no final reply after %d rounds", a.config.MaxTurns), out)
}

// streamRound consumes one decision stream to its end, forwarding text live
// and keeping the newest call map. History stays untouched: the caller
// commits the outcome only once the round succeeded as a whole, so an
// abandoned round leaves no trace behind.
func (a *Agent) streamRound(
	ctx context.Context,
	metadata events.EventMetadata,
	view conversation.Conversation,
	specs []llm.ToolSpec,
	out chan<- Fragment,
) (roundOutcome, error) {
	roundCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	stream, err := a.client.CompleteStream(roundCtx, view, specs, a.config.MaxTokens)
	if err != nil {
		if a.roundTimedOut(ctx, roundCtx, err) {
			return roundOutcome{}, errors.Wrapf(ErrTimeout, "no decision within %s", a.config.Timeout)
		}
		return roundOutcome{}, err
	}
	defer func() {
		_ = stream.Close()
	}()

	completion := strings.Builder{}
	var calls conversation.ToolCalls

	for {
		decision, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, llm.ErrMalformedFrame) {
				if !send(ctx, out, Fragment{Err: err}) {
					return roundOutcome{}, errors.Wrap(ctx.Err(), "caller went away")
				}
				continue
			}
			if a.roundTimedOut(ctx, roundCtx, err) {
				return roundOutcome{}, errors.Wrapf(ErrTimeout, "stream stalled past %s", a.config.Timeout)
			}
			return roundOutcome{}, err
		}

		if decision.RequestsTools() {
			calls = decision.Calls
		}
		if decision.Text != "" {
			completion.WriteString(decision.Text)
			events.PublishEventToContext(ctx,
				events.NewPartialCompletionEvent(metadata, decision.Text, completion.String()))
			if !send(ctx, out, Fragment{Text: decision.Text}) {
				return roundOutcome{}, errors.Wrap(ctx.Err(), "caller went away")
			}
		}
	}

	return roundOutcome{text: completion.String(), calls: calls}, nil
}

// failStream parks the agent in the error state and hands the terminal
// error to the consumer as the last fragment, best-effort.
func (a *Agent) failStream(ctx context.Context, metadata events.EventMetadata, err error, out chan<- Fragment) {
	_ = a.fail(ctx, metadata, err)
	send(ctx, out, Fragment{Err: err})
}

func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
