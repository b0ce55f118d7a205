// Package agent drives tool-calling conversations against a language model.
// An Agent owns one conversation: it hands the model a token-budgeted view
// of the history, executes the tool calls the model requests, feeds the
// results back, and loops until the model answers with plain text.
package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/events"
	"github.com/ForSeason/chimerai/pkg/llm"
	"github.com/ForSeason/chimerai/pkg/memory"
	"github.com/ForSeason/chimerai/pkg/prompts"
	"github.com/ForSeason/chimerai/pkg/tools"
)

// Agent is single-owner: one logical task drives it at a time. The state
// field is a gate, not a lock; a concurrent Handle on the same instance is
// a caller bug and is rejected with ErrNotReady instead of being serialized.
type Agent struct {
	client   llm.Client
	registry tools.Registry
	executor *tools.Executor
	history  *conversation.History
	memory   memory.LongTermMemory
	config   Config
	sinks    []events.EventSink

	conversationID uuid.UUID
	state          State
	err            error
}

type Option func(*Agent) error

func WithConfig(cfg Config) Option {
	return func(a *Agent) error {
		a.config = cfg
		return nil
	}
}

func WithRegistry(registry tools.Registry) Option {
	return func(a *Agent) error {
		if registry == nil {
			return errors.New("registry cannot be nil")
		}
		a.registry = registry
		return nil
	}
}

// WithExecutor overrides the executor built from the config. The executor's
// registry should be the agent's registry, or tools registered on the agent
// will not be resolvable.
func WithExecutor(executor *tools.Executor) Option {
	return func(a *Agent) error {
		if executor == nil {
			return errors.New("executor cannot be nil")
		}
		a.executor = executor
		return nil
	}
}

// WithLongTermMemory attaches a store for results worth keeping across
// conversations. The conversation loop itself never touches it; use
// Remember and Memory from the outside.
func WithLongTermMemory(store memory.LongTermMemory) Option {
	return func(a *Agent) error {
		a.memory = store
		return nil
	}
}

// WithEventSinks appends sinks that receive every event of this agent, in
// addition to any sinks carried by the Handle context.
func WithEventSinks(sinks ...events.EventSink) Option {
	return func(a *Agent) error {
		a.sinks = append(a.sinks, sinks...)
		return nil
	}
}

// WithHistory replaces the empty starting history, typically to resume a
// recorded conversation. A non-empty history suppresses system prompt
// seeding.
func WithHistory(history *conversation.History) Option {
	return func(a *Agent) error {
		if history == nil {
			return errors.New("history cannot be nil")
		}
		a.history = history
		return nil
	}
}

func New(client llm.Client, options ...Option) (*Agent, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	a := &Agent{
		client:         client,
		registry:       tools.NewInMemoryRegistry(),
		history:        conversation.NewHistory(),
		config:         DefaultConfig(),
		conversationID: uuid.New(),
		state:          StateReady,
	}

	for _, option := range options {
		if err := option(a); err != nil {
			return nil, err
		}
	}

	if a.executor == nil {
		a.executor = tools.NewExecutor(a.registry,
			tools.WithParallel(a.config.EnableParallel),
			tools.WithMaxParallel(a.config.MaxParallel),
		)
	}

	if a.history.Len() == 0 {
		prompt := a.config.SystemPrompt
		if a.config.PromptVars != nil {
			rendered, err := prompts.Render(prompt, a.config.PromptVars)
			if err != nil {
				return nil, errors.Wrap(err, "could not render system prompt")
			}
			prompt = rendered
		}
		if prompt != "" {
			a.history.Add(conversation.NewSystemMessage(prompt))
		}
	}

	return a, nil
}

// RegisterTool adds a tool under its own name, replacing any previous
// registration.
func (a *Agent) RegisterTool(tool tools.Tool) error {
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	return a.registry.RegisterTool(tool.Name(), tool)
}

func (a *Agent) State() State {
	return a.state
}

// Err returns the cause that parked the agent in the error state, nil
// otherwise.
func (a *Agent) Err() error {
	return a.err
}

func (a *Agent) ConversationID() uuid.UUID {
	return a.conversationID
}

func (a *Agent) History() *conversation.History {
	return a.history
}

func (a *Agent) Registry() tools.Registry {
	return a.registry
}

func (a *Agent) Memory() memory.LongTermMemory {
	return a.memory
}

// Remember stores a result in long-term memory. The conversation loop never
// writes memory on its own; front-ends decide what is worth keeping.
func (a *Agent) Remember(ctx context.Context, result string, tags []string, source string) error {
	if a.memory == nil {
		return errors.New("no long-term memory configured")
	}
	return a.memory.Store(ctx, memory.Entry{
		Result: result,
		Metadata: memory.Metadata{
			Timestamp: time.Now(),
			Tags:      tags,
			Source:    source,
		},
	})
}

// WaitForUserInput parks a ready agent so front-ends can tell "idle" apart
// from "waiting on the user". Handle accepts from this state as if ready.
func (a *Agent) WaitForUserInput() {
	if a.state == StateReady {
		a.state = StateWaitingForUserInput
	}
}

// Reset returns an agent stuck in the error state to ready, keeping the
// history. Terminated agents stay terminated, processing agents cannot be
// reset out from under their owner.
func (a *Agent) Reset() error {
	switch a.state {
	case StateTerminated:
		return errors.Wrap(ErrNotReady, "agent is terminated")
	case StateProcessing:
		return errors.Wrap(ErrNotReady, "agent is processing")
	default:
		a.state = StateReady
		a.err = nil
		return nil
	}
}

// Terminate retires the agent for good. Every later Handle fails with
// ErrNotReady.
func (a *Agent) Terminate() {
	a.state = StateTerminated
	a.err = nil
}

// Handle runs one user turn to completion: it appends the user message,
// loops over decision rounds (executing tool calls between rounds), and
// returns the model's final text. The only normal exit is the model
// responding without tool calls; running out of rounds or retries parks the
// agent in the error state.
func (a *Agent) Handle(ctx context.Context, text string) (string, error) {
	if a.state != StateReady && a.state != StateWaitingForUserInput {
		return "", errors.Wrapf(ErrNotReady, "agent state is %s", a.state)
	}
	a.state = StateProcessing
	a.err = nil

	ctx = events.WithEventSinks(ctx, a.sinks...)

	log.Debug().
		Str("conversation_id", a.conversationID.String()).
		Int("history_len", a.history.Len()).
		Msg("handling user message")

	a.history.Add(conversation.NewUserMessage(text))
	view := a.history.View(a.config.MaxTokens)
	specs := a.toolSpecs()

	rounds := 0
	retries := 0
	for rounds < a.config.MaxTurns {
		metadata := a.roundMetadata(rounds)
		events.PublishEventToContext(ctx, events.NewStartEvent(metadata))

		decision, err := a.decide(ctx, view, specs)
		if err != nil {
			if a.shouldRetry(ctx, err, retries) {
				retries++
				log.Debug().Err(err).
					Int("attempt", retries).
					Int("max_retries", a.config.Retry.MaxRetries).
					Msg("decision failed, retrying")
				if waitErr := a.waitRetryDelay(ctx); waitErr != nil {
					return "", a.fail(ctx, metadata, waitErr)
				}
				continue
			}
			if errors.Is(err, ErrTimeout) {
				err = &timeoutError{attempts: retries + 1}
			}
			return "", a.fail(ctx, metadata, err)
		}

		if decision.RequestsTools() {
			a.runToolRound(ctx, metadata, decision)
			view = a.history.View(a.config.MaxTokens)
			rounds++
			continue
		}

		a.history.Add(conversation.NewAssistantMessage(decision.Text, nil))
		events.PublishEventToContext(ctx, events.NewFinalEvent(metadata, decision.Text))
		a.state = StateReady
		return decision.Text, nil
	}

	return "", a.fail(ctx, a.roundMetadata(a.config.MaxTurns),
		errors.Wrapf(ErrRetryExhausted, "no final reply after %d rounds", a.config.MaxTurns))
}

// decide asks the model for the next step under the round timeout. A round
// that hits its own deadline comes back as ErrTimeout; the caller owns the
// retry budget. A parent context failure is never converted, so caller
// cancellation propagates as such.
func (a *Agent) decide(ctx context.Context, view conversation.Conversation, specs []llm.ToolSpec) (llm.Decision, error) {
	roundCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	decision, err := a.client.Complete(roundCtx, view, specs, a.config.MaxTokens)
	if err != nil {
		if a.roundTimedOut(ctx, roundCtx, err) {
			return llm.Decision{}, errors.Wrapf(ErrTimeout, "no decision within %s", a.config.Timeout)
		}
		return llm.Decision{}, err
	}
	return decision, nil
}

func (a *Agent) roundTimedOut(ctx, roundCtx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || roundCtx.Err() == context.DeadlineExceeded
}

// shouldRetry applies the retry policy: timeouts always qualify, other
// provider failures only when RetryOnError is set, and never once the
// parent context is done or the budget is spent.
func (a *Agent) shouldRetry(ctx context.Context, err error, retries int) bool {
	if retries >= a.config.Retry.MaxRetries {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	return a.config.Retry.RetryOnError && ctx.Err() == nil
}

func (a *Agent) waitRetryDelay(ctx context.Context) error {
	if a.config.Retry.RetryDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.config.Retry.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "aborted while waiting to retry")
	}
}

// runToolRound records the model's tool request, executes the batch, and
// appends one Tool message per call so the next round sees every outcome.
// Failed calls are reported to the model, never retried.
func (a *Agent) runToolRound(ctx context.Context, metadata events.EventMetadata, decision llm.Decision) {
	a.history.Add(conversation.NewAssistantMessage(decision.Text, decision.Calls))

	for _, id := range sortedIDs(decision.Calls) {
		call := decision.Calls[id]
		events.PublishEventToContext(ctx, events.NewToolCallEvent(metadata, events.ToolCall{
			ID:    id,
			Name:  call.Name,
			Input: string(call.Args),
		}))
	}

	result := a.executor.Execute(ctx, decision.Calls)

	for _, id := range sortedIDs(result.Success) {
		a.history.Add(conversation.NewToolMessage(id, result.Success[id]))
	}
	for _, id := range sortedIDs(result.Failure) {
		a.history.Add(conversation.NewToolMessage(id, failureNotice(decision.Calls, id, result.Failure[id])))
	}
}

// fail records a terminal error: the agent parks in the error state with
// the cause retained until Reset.
func (a *Agent) fail(ctx context.Context, metadata events.EventMetadata, err error) error {
	a.state = StateError
	a.err = err
	events.PublishEventToContext(ctx, events.NewErrorEvent(metadata, err))
	log.Debug().Err(err).
		Str("conversation_id", a.conversationID.String()).
		Msg("conversation failed")
	return err
}

func (a *Agent) roundMetadata(round int) events.EventMetadata {
	return events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: a.conversationID,
		Round:          round,
	}
}

// toolSpecs snapshots the registry as provider-facing descriptors, sorted
// by name so requests are deterministic.
func (a *Agent) toolSpecs() []llm.ToolSpec {
	list := a.registry.ListTools()
	if len(list) == 0 {
		return nil
	}
	specs := make([]llm.ToolSpec, 0, len(list))
	for _, tool := range list {
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// failureNotice is what the model sees in place of a failed call's output.
func failureNotice(calls conversation.ToolCalls, id string, failure string) string {
	name := id
	if call, ok := calls[id]; ok && call.Name != "" {
		name = call.Name
	}
	return fmt.Sprintf("Tool %s failed (error: %s). It will not be retried; solve the problem another way or respond accordingly.", name, failure)
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
