// Command streaming-events streams a tool-calling conversation while routing
// the engine's events through a watermill router, where a printer handler
// renders partial completions, tool calls and tool results as they happen.
//
// Environment:
//
//	API_KEY       API key for the endpoint (required)
//	MODEL         chat model name (default "gpt-4o-mini")
//	API_BASE_URL  endpoint base URL (default is the OpenAI API)
package main

import (
	"context"
	"os"
	"strings"

	"github.com/ForSeason/chimerai/pkg/agent"
	"github.com/ForSeason/chimerai/pkg/events"
	"github.com/ForSeason/chimerai/pkg/llm/openai"
	"github.com/ForSeason/chimerai/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// WeatherRequest represents the input for the weather tool
type WeatherRequest struct {
	Location string `json:"location" jsonschema:"required,description=The city to get weather for"`
	Units    string `json:"units,omitempty" jsonschema:"description=Temperature units (celsius or fahrenheit),default=celsius,enum=celsius,enum=fahrenheit"`
}

// WeatherResponse represents the weather tool's response
type WeatherResponse struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Conditions  string  `json:"conditions"`
	Units       string  `json:"units"`
}

// getWeather is a mock weather tool that returns fake data
func getWeather(req WeatherRequest) (WeatherResponse, error) {
	log.Info().Str("location", req.Location).Str("units", req.Units).Msg("Weather tool called!")

	return WeatherResponse{
		Location:    req.Location,
		Temperature: 22.5,
		Conditions:  "Sunny",
		Units:       req.Units,
	}, nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("API_KEY is required")
	}
	model := os.Getenv("MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	prompt := "What is the weather in Berlin and in Paris right now?"
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	router, err := events.NewEventRouter()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event router")
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event router")
		}
	}()

	chatSink := events.NewWatermillSink(router.Publisher, "chat")
	router.AddHandler("chat-printer", "chat", events.AgentPrinterFunc("assistant", os.Stdout))

	config := agent.DefaultConfig()
	config.SystemPrompt = "You are a weather assistant. Use the get_weather tool for every location the user asks about."
	config.EnableParallel = true
	config.MaxTokens = nil

	clientOptions := []openai.Option{openai.WithTemperature(config.Temperature)}
	if baseURL := os.Getenv("API_BASE_URL"); baseURL != "" {
		clientOptions = append(clientOptions, openai.WithBaseURL(baseURL))
	}
	client := openai.NewClient(apiKey, model, clientOptions...)

	weather, err := tools.NewToolFromFunc(
		"get_weather",
		"Get current weather information for a specific location",
		getWeather,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create weather tool")
	}

	bot, err := agent.New(client,
		agent.WithConfig(config),
		agent.WithEventSinks(chatSink),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	if err := bot.RegisterTool(weather); err != nil {
		log.Fatal().Err(err).Msg("Failed to register weather tool")
	}

	eg := errgroup.Group{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		fragments, err := bot.HandleStream(ctx, prompt)
		if err != nil {
			return err
		}
		// The printer handler renders the stream; we only drain the channel
		// and keep an eye out for terminal errors.
		for fragment := range fragments {
			if fragment.Err != nil {
				log.Warn().Err(fragment.Err).Msg("Stream fragment error")
			}
		}
		return bot.Err()
	})

	if err := eg.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Conversation failed")
	}
}
