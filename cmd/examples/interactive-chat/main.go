// Command interactive-chat runs a terminal REPL against the agent, keeping
// one conversation across turns and printing the assistant's reply as it
// streams in. A line holding only `"""` switches to multi-line input until
// the closing `"""`. The provider is picked from the environment:
//
//	OLLAMA_MODEL  use a local ollama server with this model
//	API_KEY       otherwise, use an OpenAI-compatible endpoint
//	MODEL         chat model name (default "gpt-4o-mini")
//	API_BASE_URL  endpoint base URL (default is the OpenAI API)
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ForSeason/chimerai/pkg/agent"
	"github.com/ForSeason/chimerai/pkg/llm"
	"github.com/ForSeason/chimerai/pkg/llm/ollama"
	"github.com/ForSeason/chimerai/pkg/llm/openai"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

func buildClient(temperature float64) (llm.Client, error) {
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		return ollama.NewClientFromEnvironment(model, ollama.WithTemperature(temperature))
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		return nil, errors.New("either OLLAMA_MODEL or API_KEY must be set")
	}
	model := os.Getenv("MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	options := []openai.Option{openai.WithTemperature(temperature)}
	if baseURL := os.Getenv("API_BASE_URL"); baseURL != "" {
		options = append(options, openai.WithBaseURL(baseURL))
	}
	return openai.NewClient(apiKey, model, options...), nil
}

// readInput collects one user message. A first line of `"""` starts
// multi-line capture; lines accumulate until the closing `"""`.
func readInput(ui *input.UI) (string, error) {
	line, err := ui.Ask("you", &input.Options{
		Required: true,
		Loop:     true,
	})
	if err != nil {
		return "", err
	}
	if line != `"""` {
		return line, nil
	}

	var lines []string
	for {
		more, err := ui.Ask(`... (close with """)`, &input.Options{})
		if err != nil {
			return "", err
		}
		if more == `"""` {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, more)
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		log.Fatal().Msg("interactive-chat needs a terminal on stdin")
	}

	config := agent.DefaultConfig()
	config.SystemPrompt = "You are a concise assistant chatting in a terminal. Keep answers to a few sentences."
	config.MaxTokens = nil

	client, err := buildClient(config.Temperature)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}

	bot, err := agent.New(client, agent.WithConfig(config))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}

	ui := &input.UI{
		Writer: os.Stdout,
		Reader: os.Stdin,
	}

	fmt.Println(`Chat started. Type 'exit' to quit, '"""' for multi-line input.`)

	ctx := context.Background()
	for {
		bot.WaitForUserInput()

		line, err := readInput(ui)
		if err != nil {
			// stdin closed (ctrl-d)
			fmt.Println()
			break
		}
		if line == "exit" || line == "quit" {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fragments, err := bot.HandleStream(ctx, line)
		if err != nil {
			log.Error().Err(err).Msg("Turn failed")
			continue
		}

		fmt.Print("\nassistant: ")
		for fragment := range fragments {
			if fragment.Err != nil {
				if errors.Is(fragment.Err, llm.ErrMalformedFrame) {
					log.Warn().Err(fragment.Err).Msg("Skipped a malformed frame")
				}
				continue
			}
			fmt.Print(fragment.Text)
		}
		fmt.Print("\n\n")

		if err := bot.Err(); err != nil {
			log.Error().Err(err).Msg("Turn failed")
			if resetErr := bot.Reset(); resetErr != nil {
				log.Fatal().Err(resetErr).Msg("Could not recover the agent")
			}
		}
	}

	bot.Terminate()
	log.Info().Int("messages", bot.History().Len()).Msg("Chat ended")
}
