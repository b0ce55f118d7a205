package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/events"
	"github.com/ForSeason/chimerai/pkg/parse"
)

// ExecutionResult partitions a batch of tool calls into successes and
// failures, keyed by tool call ID. Every call ID of the batch ends up in
// exactly one of the two maps.
type ExecutionResult struct {
	Success map[string]string `json:"success_result"`
	Failure map[string]string `json:"failure_result"`
}

func NewExecutionResult() *ExecutionResult {
	return &ExecutionResult{
		Success: make(map[string]string),
		Failure: make(map[string]string),
	}
}

// Executor resolves tool calls against a registry and runs them, sequentially
// by default or concurrently when parallel execution is enabled.
type Executor struct {
	registry     Registry
	parallel     bool
	maxParallel  int
	validateArgs bool
}

type ExecutorOption func(*Executor)

// WithParallel enables concurrent execution of tool call batches.
func WithParallel(parallel bool) ExecutorOption {
	return func(e *Executor) {
		e.parallel = parallel
	}
}

// WithMaxParallel caps the number of tool calls running at once in parallel
// mode. Zero or negative means no cap.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxParallel = n
	}
}

// WithArgsValidation enables JSON schema validation of call arguments before
// execution. Tools without a schema are not validated.
func WithArgsValidation(validate bool) ExecutorOption {
	return func(e *Executor) {
		e.validateArgs = validate
	}
}

func NewExecutor(registry Registry, options ...ExecutorOption) *Executor {
	ret := &Executor{
		registry: registry,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Execute runs a batch of tool calls. A tool that cannot be resolved, fails
// validation, or returns an error is recorded in the failure map; it is never
// retried. Execute itself does not fail: the caller decides what to do with
// failures.
func (e *Executor) Execute(ctx context.Context, calls conversation.ToolCalls) *ExecutionResult {
	result := NewExecutionResult()
	if len(calls) == 0 {
		return result
	}

	if e.parallel && len(calls) > 1 {
		return e.executeParallel(ctx, calls)
	}

	for id, args := range calls {
		output, failure := e.executeCall(ctx, id, args)
		if failure != "" {
			result.Failure[id] = failure
		} else {
			result.Success[id] = output
		}
	}

	return result
}

type callOutcome struct {
	id      string
	output  string
	failure string
}

func (e *Executor) executeParallel(ctx context.Context, calls conversation.ToolCalls) *ExecutionResult {
	outcomes := make([]callOutcome, len(calls))

	eg := errgroup.Group{}
	if e.maxParallel > 0 {
		eg.SetLimit(e.maxParallel)
	}
	i := 0
	for id, args := range calls {
		index := i
		callID := id
		callArgs := args
		i++

		eg.Go(func() error {
			output, failure := e.executeCall(ctx, callID, callArgs)
			outcomes[index] = callOutcome{id: callID, output: output, failure: failure}
			return nil
		})
	}
	// goroutines never return errors, failures are carried in outcomes
	_ = eg.Wait()

	result := NewExecutionResult()
	for _, outcome := range outcomes {
		if outcome.failure != "" {
			result.Failure[outcome.id] = outcome.failure
		} else {
			result.Success[outcome.id] = outcome.output
		}
	}

	return result
}

// executeCall runs a single call. It returns the tool output and an empty
// failure string on success, or an empty output and the failure message.
func (e *Executor) executeCall(ctx context.Context, id string, args conversation.ToolCallArgs) (string, string) {
	tool, err := e.registry.GetTool(args.Name)
	if err != nil {
		log.Warn().Str("tool", args.Name).Str("call_id", id).Msg("tool call references unknown tool")
		return "", fmt.Sprintf("Tool %s does not exist!", args.Name)
	}

	if e.validateArgs {
		if failure := e.validateCallArgs(tool, args); failure != "" {
			return "", failure
		}
	}

	events.PublishEventToContext(ctx, events.NewToolCallExecuteEvent(
		events.EventMetadata{ID: uuid.New()},
		events.ToolCall{ID: id, Name: args.Name, Input: string(args.Args)},
	))

	log.Debug().Str("tool", args.Name).Str("call_id", id).Msg("executing tool")
	output, err := tool.Execute(ctx, args.Args)

	resultStr := output
	if err != nil {
		resultStr = fmt.Sprintf("Error: %s", err.Error())
	}
	events.PublishEventToContext(ctx, events.NewToolCallExecutionResultEvent(
		events.EventMetadata{ID: uuid.New()},
		events.ToolResult{ID: id, Result: resultStr},
	))

	if err != nil {
		log.Debug().Err(err).Str("tool", args.Name).Str("call_id", id).Msg("tool execution failed")
		return "", err.Error()
	}

	return output, ""
}

func (e *Executor) validateCallArgs(tool Tool, args conversation.ToolCallArgs) string {
	schema := tool.Schema()
	if schema == nil {
		return ""
	}

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		log.Warn().Err(err).Str("tool", args.Name).Msg("could not marshal tool schema, skipping validation")
		return ""
	}

	document := string(args.Args)
	if document == "" {
		document = "{}"
	}

	validation, err := parse.ValidateJSON(string(schemaBytes), document)
	if err != nil {
		return fmt.Sprintf("could not validate arguments for tool %s: %s", args.Name, err.Error())
	}
	if !validation.Valid {
		return fmt.Sprintf("invalid arguments for tool %s: %s", args.Name, strings.TrimSpace(validation.ValidationErrors))
	}

	return ""
}
