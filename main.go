package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/apptflow-poc/server/internal/agent/appointments"
	"github.com/apptflow-poc/server/internal/agent/graph"
	"github.com/apptflow-poc/server/internal/agent/model"
	"github.com/apptflow-poc/server/internal/agent/repo"
	"github.com/apptflow-poc/server/internal/core"
	logx "github.com/apptflow-poc/server/pkg/logger"
	pkgredis "github.com/apptflow-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant demo,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Assistant configs
	Classifier   model.ClassifierModelConfig
	Agent        model.AgentModelConfig
	Prompt       model.AssistantPromptConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	cfg := graph.Config{
		APIKey:            envCfg.APIKey,
		BaseURL:           envCfg.BaseURL,
		ClassifierModel:   envCfg.Classifier,
		AgentModel:        envCfg.Agent,
		AssistantPrompt:   envCfg.Prompt,
		Conversation:      envCfg.Conversation,
		ConversationRepo:  repo.NewRedisConversationRepository(rdb, ttl),
		AppointmentSource: appointments.NewStaticSource(),
	}

	runner, err := graph.BuildConversationGraph(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "General question routed to the agent loop",
			query:       "How long does a plumbing repair usually take?",
		},
		{
			description: "Fresh cancellation request",
			query:       "I'd like to cancel my appointment.",
		},
		{
			description: "Decline the reschedule, cancel a specific appointment",
			query:       "No thanks, just cancel the cleaning on January 1st.",
		},
	}

	conversationID := uuid.NewString()
	fmt.Printf("Conversation: %s\n", conversationID)

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		response, err := runner.Invoke(ctx, model.QueryInput{
			ConversationID: conversationID,
			Query:          test.query,
		})
		if err != nil {
			fmt.Printf("Response %d: %s\n", i+1, graph.FallbackApology)
			log.Fatalf("Graph run failed for test %d: %v", i+1, err)
		}

		fmt.Printf("Response %d: %s\n", i+1, response)
		fmt.Println("────────────────────────────────────────")

		// slight delay between turns for readability
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("All conversation turns completed.")
}
