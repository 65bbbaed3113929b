package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
)

// systemInstruction is the fixed instruction for free-text fallback replies.
const systemInstruction = "You are a helpful support assistant for a small Indian e-commerce store. " +
	"Answer customer questions briefly and politely. If you do not know the answer, " +
	"say so and suggest the customer reply 'menu' to see the available options."

// AIClient answers free text that no dispatcher branch claimed.
type AIClient struct {
	cfg        *config.AIConfig
	logger     *zap.Logger
	httpClient *http.Client
}

func NewAIClient(cfg *config.AIConfig, logger *zap.Logger) *AIClient {
	return &AIClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer returns the model's reply to the question. An empty reply is
// reported as an error so the caller falls back to the canned apology.
func (a *AIClient) Answer(ctx context.Context, question string) (string, error) {
	if a.cfg.APIKey == "" {
		return "", fmt.Errorf("ai responder not configured")
	}

	system := systemInstruction
	if a.cfg.KnowledgeDoc != "" {
		system += "\n\nStore knowledge base:\n" + a.cfg.KnowledgeDoc
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Error("chat completion failed",
			zap.Int("status", resp.StatusCode), zap.ByteString("response", body))
		return "", fmt.Errorf("chat completion: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat completion: empty answer")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
