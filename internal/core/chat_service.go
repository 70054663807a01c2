package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"kcglobed.com/finance-chatbot/internal/config"
)

type ChatServiceConfig struct {
	// HistoryTokenBudget trims the oldest turns from the prompt; zero sends the whole history.
	HistoryTokenBudget int
	// CompletionTimeout bounds each chat completion; zero means no deadline.
	CompletionTimeout time.Duration
}

// ChatService answers user messages with retrieved context, catalog tools and conversation memory.
type ChatService struct {
	completer Completer
	assembler *ContextAssembler
	tools     *ToolRegistry
	history   HistoryStore
	cfg       ChatServiceConfig
}

func NewChatService(completer Completer, assembler *ContextAssembler, tools *ToolRegistry, history HistoryStore, cfg ChatServiceConfig) *ChatService {
	return &ChatService{
		completer: completer,
		assembler: assembler,
		tools:     tools,
		history:   history,
		cfg:       cfg,
	}
}

// GenerateReply produces the final answer for message. Only provider failures are returned
// as errors; retrieval and tool problems degrade to a best-effort answer.
// The user turn and the final answer are appended to history after a successful reply.
func (s *ChatService) GenerateReply(ctx context.Context, message string, userID int64) (string, error) {
	history, err := s.history.History(ctx, userID)
	if err != nil {
		log.Printf("Error getting history for user %d: %v. Proceeding without history.", userID, err)
		history = nil
	}
	history = TrimToTokenBudget(history, s.cfg.HistoryTokenBudget)

	contextBlock := s.assembler.BuildContext(ctx, message)
	config.Debugf("Context for user %d: %d chars", userID, len(contextBlock))

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: buildSystemPrompt(s.tools.RenderToolContext(), contextBlock)})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: message})

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to get chat completion: %w", err)
	}

	final := reply
	if IsToolEnvelope(reply) {
		final, err = s.answerWithTool(ctx, message, reply)
		if err != nil {
			return "", err
		}
	}

	if err := s.history.Append(ctx, userID,
		Message{Role: RoleUser, Content: message},
		Message{Role: RoleAssistant, Content: final},
	); err != nil {
		log.Printf("Failed to store conversation turn for user %d: %v", userID, err)
	}
	return final, nil
}

// answerWithTool runs the requested catalog query and has the model phrase the rows.
// Any tool problem switches to the fallback completion.
func (s *ChatService) answerWithTool(ctx context.Context, message, envelope string) (string, error) {
	call, err := ParseToolCall(envelope)
	if err != nil {
		log.Printf("Tool execution failed, fallback: %v", err)
		return s.fallback(ctx, message)
	}

	result := s.tools.Execute(ctx, call)
	if !result.OK() {
		log.Printf("Tool execution failed, fallback: %s", result.Err)
		return s.fallback(ctx, message)
	}

	rowsJSON, err := json.Marshal(result.Rows)
	if err != nil {
		log.Printf("Tool %s returned unserialisable rows, fallback: %v", call.Tool, err)
		return s.fallback(ctx, message)
	}
	config.Debugf("Tool %s returned %d rows", call.Tool, len(result.Rows))

	answer, err := s.complete(ctx, renderRowsMessages(message, string(rowsJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to render tool result: %w", err)
	}
	return answer, nil
}

func (s *ChatService) fallback(ctx context.Context, message string) (string, error) {
	answer, err := s.complete(ctx, toolFallbackMessages(message))
	if err != nil {
		return "", fmt.Errorf("failed to get fallback completion: %w", err)
	}
	return answer, nil
}

// VerifyEssay forwards messages to the completion provider unchanged.
func (s *ChatService) VerifyEssay(ctx context.Context, messages []Message) (string, error) {
	return s.complete(ctx, messages)
}

type EssayVerdict struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// InvalidEssayResponseError carries the model output that could not be parsed as a verdict.
type InvalidEssayResponseError struct {
	Raw string
}

func (e *InvalidEssayResponseError) Error() string { return ErrInvalidEssayResponse.Error() }

func (e *InvalidEssayResponseError) Unwrap() error { return ErrInvalidEssayResponse }

// CompareEssays grades userInput against explanation on a 0-100 scale.
func (s *ChatService) CompareEssays(ctx context.Context, userInput, explanation string) (EssayVerdict, error) {
	raw, err := s.VerifyEssay(ctx, essayMessages(userInput, explanation))
	if err != nil {
		return EssayVerdict{}, fmt.Errorf("failed to verify essay: %w", err)
	}

	var verdict EssayVerdict
	if err := json.Unmarshal([]byte(unwrapCodeFence(raw)), &verdict); err != nil {
		return EssayVerdict{}, &InvalidEssayResponseError{Raw: raw}
	}
	verdict.Reason = strings.TrimSpace(verdict.Reason)
	return verdict, nil
}

func (s *ChatService) complete(ctx context.Context, messages []Message) (string, error) {
	if s.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CompletionTimeout)
		defer cancel()
	}
	return s.completer.Complete(ctx, messages)
}
