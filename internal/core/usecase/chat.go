package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

const (
	toolKnowledgeSearch = "search_knowledge_base"
	toolWeather         = "get_weather"

	genericErrorMessage = "Une erreur interne est survenue. Veuillez réessayer."
	timeoutErrorMessage = "La génération de la réponse a dépassé le délai imparti."

	defaultSystemPrompt = `Tu es un assistant spécialisé dans la réglementation des chantiers en voirie.
Réponds uniquement à partir des résultats de l'outil search_knowledge_base et cite tes sources avec leur numéro entre crochets, par exemple [1].
Si l'outil indique HORS PÉRIMÈTRE ou PERTINENCE FAIBLE, dis poliment que la question sort du périmètre de la base documentaire et n'invente rien.
Pour les questions de météo utilise l'outil get_weather.`
)

// ChatConfig bounds one streamed conversation turn.
type ChatConfig struct {
	Model                string
	SystemPrompt         string
	StreamTimeout        time.Duration
	MaxToolRounds        int
	IncludeSourceContent bool
}

func (c ChatConfig) normalize() ChatConfig {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 60 * time.Second
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 3
	}
	return c
}

// ChatUseCase orchestrates a retrieval-augmented chat turn: session history,
// the streamed model call with the retrieval pipeline and the weather lookup
// exposed as tools, citation extraction and source reporting.
type ChatUseCase struct {
	llm      ports.LLMClient
	search   *SearchUseCase
	weather  ports.WeatherProvider
	sessions *SessionStore
	cfg      ChatConfig
}

func NewChatUseCase(
	llm ports.LLMClient,
	search *SearchUseCase,
	weather ports.WeatherProvider,
	sessions *SessionStore,
	cfg ChatConfig,
) *ChatUseCase {
	return &ChatUseCase{
		llm:      llm,
		search:   search,
		weather:  weather,
		sessions: sessions,
		cfg:      cfg.normalize(),
	}
}

// Stream runs one chat turn, emitting token, tool_call, sources and done
// events in order. Any failure is logged, converted into a terminal error
// event with a generic message, and returned; the stream never hangs open.
func (uc *ChatUseCase) Stream(ctx context.Context, req domain.ChatRequest, emit func(domain.ChatEvent) error) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "chat stream", fmt.Errorf("message is required"))
		_ = emit(domain.ChatEvent{Type: "error", Content: "Le message est vide."})
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.StreamTimeout)
	defer cancel()

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = uc.cfg.Model
	}

	err := uc.run(ctx, req.SessionID, model, message, emit)
	if err == nil {
		return nil
	}

	slog.Error("chat_stream_failed",
		"session_id", req.SessionID,
		"model", model,
		"error", err,
	)
	userMessage := genericErrorMessage
	if errors.Is(err, context.DeadlineExceeded) {
		userMessage = timeoutErrorMessage
	}
	_ = emit(domain.ChatEvent{Type: "error", Content: userMessage})
	return err
}

func (uc *ChatUseCase) run(ctx context.Context, sessionID, model, message string, emit func(domain.ChatEvent) error) error {
	history := uc.sessions.History(sessionID, model)

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: uc.cfg.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: message})

	onToken := func(token string) error {
		if token == "" {
			return nil
		}
		return emit(domain.ChatEvent{Type: "token", Content: token})
	}

	var lastRetrieval *domain.Retrieval
	finalText := ""

	for round := 0; ; round++ {
		tools := uc.toolSpecs()
		if round >= uc.cfg.MaxToolRounds {
			// Force a textual answer once the tool budget is spent.
			tools = nil
		}

		turn, err := uc.llm.StreamChat(ctx, messages, tools, onToken)
		if err != nil {
			return fmt.Errorf("stream chat: %w", err)
		}

		if len(turn.ToolCalls) == 0 {
			finalText = turn.Text
			break
		}

		messages = append(messages, domain.ChatMessage{Role: "assistant", ToolCalls: turn.ToolCalls})
		for _, call := range turn.ToolCalls {
			result := uc.executeTool(ctx, call, &lastRetrieval)
			if err := emit(domain.ChatEvent{
				Type:       "tool_call",
				ToolName:   call.Name,
				ToolArgs:   call.Arguments,
				ToolResult: result,
			}); err != nil {
				return err
			}
			messages = append(messages, domain.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	sources := DescribeSources(lastRetrieval, uc.cfg.IncludeSourceContent)
	cited := FilterCitedIndices(ExtractCitedIndices(finalText), len(sources))

	if len(sources) > 0 {
		if err := emit(domain.ChatEvent{Type: "sources", Sources: sources, CitedIndices: cited}); err != nil {
			return err
		}
	}
	if err := emit(domain.ChatEvent{Type: "done"}); err != nil {
		return err
	}

	uc.sessions.Append(sessionID, model,
		domain.ChatMessage{Role: "user", Content: message},
		domain.ChatMessage{Role: "assistant", Content: finalText},
	)
	return nil
}

func (uc *ChatUseCase) executeTool(ctx context.Context, call domain.ToolCall, lastRetrieval **domain.Retrieval) string {
	switch call.Name {
	case toolKnowledgeSearch:
		var args struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
			return noResultsMessage
		}
		retrieval, err := uc.search.Retrieve(ctx, args.Query, args.Limit)
		if err != nil {
			slog.Error("knowledge_search_tool_failed", "query", args.Query, "error", err)
			return "Une erreur est survenue pendant la recherche dans la base de connaissances."
		}
		if retrieval.Outcome == domain.RetrievalOK {
			*lastRetrieval = retrieval
		}
		return FormatForModel(retrieval)

	case toolWeather:
		var args struct {
			Location string `json:"location"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Location) == "" {
			return "Localisation manquante pour la météo."
		}
		report, err := uc.weather.CurrentWeather(ctx, args.Location)
		if err != nil {
			slog.Warn("weather_tool_failed", "location", args.Location, "error", err)
			return fmt.Sprintf("Impossible de récupérer la météo pour %s.", args.Location)
		}
		return report

	default:
		return fmt.Sprintf("Outil inconnu: %s.", call.Name)
	}
}

func (uc *ChatUseCase) toolSpecs() []domain.ToolSpec {
	specs := []domain.ToolSpec{
		{
			Name:        toolKnowledgeSearch,
			Description: "Recherche dans la base de connaissances réglementaire et renvoie des extraits numérotés avec leur pertinence.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "La question à rechercher"},
					"limit": {"type": "integer", "description": "Nombre maximal de résultats"}
				},
				"required": ["query"]
			}`),
		},
	}
	if uc.weather != nil {
		specs = append(specs, domain.ToolSpec{
			Name:        toolWeather,
			Description: "Météo actuelle pour une ville ou des coordonnées latitude,longitude.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"location": {"type": "string", "description": "Ville ou \"lat,lon\""}
				},
				"required": ["location"]
			}`),
		})
	}
	return specs
}
