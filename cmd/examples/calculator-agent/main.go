// Command calculator-agent runs a multi-turn tool-calling conversation
// against an OpenAI-compatible endpoint, with a local calculator registered
// as the only tool.
//
// Environment:
//
//	API_KEY       API key for the endpoint (required)
//	MODEL         chat model name (default "gpt-4o-mini")
//	API_BASE_URL  endpoint base URL (default is the OpenAI API)
//
// Pass -config to load the session tuning from a YAML file instead of the
// built-in settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ForSeason/chimerai/pkg/agent"
	"github.com/ForSeason/chimerai/pkg/llm/openai"
	"github.com/ForSeason/chimerai/pkg/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CalculatorRequest represents the input for the calculator tool
type CalculatorRequest struct {
	Op   string  `json:"op" jsonschema:"required,description=The operation to perform,enum=add,enum=subtract,enum=multiply,enum=divide"`
	Num1 float64 `json:"num1" jsonschema:"required,description=The first operand"`
	Num2 float64 `json:"num2" jsonschema:"required,description=The second operand"`
}

func calculate(req CalculatorRequest) (string, error) {
	log.Info().Str("op", req.Op).Float64("num1", req.Num1).Float64("num2", req.Num2).Msg("Calculator tool called!")

	var result float64
	switch req.Op {
	case "add":
		result = req.Num1 + req.Num2
	case "subtract":
		result = req.Num1 - req.Num2
	case "multiply":
		result = req.Num1 * req.Num2
	case "divide":
		if req.Num2 == 0 {
			return "", errors.New("Division by zero")
		}
		result = req.Num1 / req.Num2
	default:
		return "", errors.Errorf("unknown operation %q", req.Op)
	}

	return fmt.Sprintf("result: %.2f", result), nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML session config file")
	flag.Parse()

	// Set up debug logging to see the request payloads
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("API_KEY is required")
	}
	model := os.Getenv("MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	config := agent.DefaultConfig()
	config.SystemPrompt = "You are a helpful assistant with a calculator. Use it for any arithmetic instead of computing results yourself."
	config.MaxTurns = 50
	config.MaxTokens = nil
	config.EnableParallel = true
	config.Retry.MaxRetries = 1
	config.Timeout = 600 * time.Second
	// A config file replaces the built-in tuning wholesale.
	if *configPath != "" {
		loaded, err := agent.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config file")
		}
		config = loaded
	}

	clientOptions := []openai.Option{openai.WithTemperature(config.Temperature)}
	if baseURL := os.Getenv("API_BASE_URL"); baseURL != "" {
		clientOptions = append(clientOptions, openai.WithBaseURL(baseURL))
	}
	client := openai.NewClient(apiKey, model, clientOptions...)

	calculator, err := tools.NewToolFromFunc(
		"calculator",
		"A versatile calculator tool that supports addition, subtraction, multiplication and division",
		calculate,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create calculator tool")
	}

	bot, err := agent.New(client, agent.WithConfig(config))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	if err := bot.RegisterTool(calculator); err != nil {
		log.Fatal().Err(err).Msg("Failed to register calculator tool")
	}

	ctx := context.Background()
	questions := []string{
		"What is 12.5 times 8, minus 3?",
		"Now divide that result by zero and tell me what happens.",
	}

	for _, question := range questions {
		fmt.Printf("> %s\n", question)
		reply, err := bot.Handle(ctx, question)
		if err != nil {
			log.Fatal().Err(err).Msg("Conversation failed")
		}
		fmt.Printf("%s\n\n", reply)
	}
}
