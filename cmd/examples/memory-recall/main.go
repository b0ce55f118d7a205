// Command memory-recall stores assistant replies in long-term memory and
// recalls them afterwards by meaning and by tag. With WEAVIATE_HOST set the
// entries go to a weaviate instance, otherwise to an in-process store.
//
// Environment:
//
//	API_KEY        API key for the endpoint (required)
//	MODEL          chat model name (default "gpt-4o-mini")
//	API_BASE_URL   endpoint base URL (default is the OpenAI API)
//	WEAVIATE_HOST  host:port of a weaviate instance (optional)
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ForSeason/chimerai/pkg/agent"
	"github.com/ForSeason/chimerai/pkg/llm/goopenai"
	"github.com/ForSeason/chimerai/pkg/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func buildStore() memory.LongTermMemory {
	if host := os.Getenv("WEAVIATE_HOST"); host != "" {
		log.Info().Str("host", host).Msg("Using weaviate for long-term memory")
		return memory.NewWeaviateStoreFromHost("http", host)
	}
	log.Info().Msg("Using in-process long-term memory")
	return memory.NewInMemoryStore()
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

	config := agent.DefaultConfig()
	config.SystemPrompt = "You are a research assistant. Answer factually and in one short paragraph."

	clientOptions := []goopenai.Option{goopenai.WithTemperature(config.Temperature)}
	if baseURL := os.Getenv("API_BASE_URL"); baseURL != "" {
		clientOptions = append(clientOptions, goopenai.WithBaseURL(baseURL))
	}
	client := goopenai.NewClient(apiKey, model, clientOptions...)

	store := buildStore()
	bot, err := agent.New(client,
		agent.WithConfig(config),
		agent.WithLongTermMemory(store),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}

	ctx := context.Background()
	sessions := []struct {
		question string
		tags     []string
	}{
		{"What is the boiling point of water at sea level?", []string{"physics"}},
		{"Who wrote The Left Hand of Darkness?", []string{"literature"}},
	}

	for _, session := range sessions {
		fmt.Printf("> %s\n", session.question)
		reply, err := bot.Handle(ctx, session.question)
		if err != nil {
			log.Fatal().Err(err).Msg("Conversation failed")
		}
		fmt.Printf("%s\n\n", reply)

		if err := bot.Remember(ctx, reply, session.tags, "memory-recall-example"); err != nil {
			log.Fatal().Err(err).Msg("Failed to store reply")
		}
	}

	entries, err := bot.Memory().Recall(ctx, memory.SemanticQuery{
		Description: "facts about books and their authors",
		Limit:       1,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Semantic recall failed")
	}
	fmt.Println("Closest entry to 'facts about books and their authors':")
	for _, entry := range entries {
		fmt.Printf("  [%s] %s\n", entry.Metadata.Timestamp.Format("15:04:05"), entry.Result)
	}

	entries, err = bot.Memory().Recall(ctx, memory.TagsQuery{Tags: []string{"physics"}})
	if err != nil {
		log.Fatal().Err(err).Msg("Tag recall failed")
	}
	fmt.Println("\nEntries tagged 'physics':")
	for _, entry := range entries {
		fmt.Printf("  [%s] %s\n", entry.Metadata.Timestamp.Format("15:04:05"), entry.Result)
	}
}
