package ai

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
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
	baseURL   string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return &OpenAIProvider{logger: logger}
	}

	return &OpenAIProvider{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
		baseURL:   "https://api.openai.com/v1",
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is available
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// SetBaseURL overrides the API base URL (used in tests)
func (p *OpenAIProvider) SetBaseURL(url string) {
	p.baseURL = url
}

// Respond generates the next conversational turn using OpenAI
func (p *OpenAIProvider) Respond(ctx context.Context, req *RespondRequest) (*RespondResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("OpenAI provider not available")
	}

	messages := []map[string]interface{}{
		{"role": "system", "content": buildSystemPrompt(req)},
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, map[string]interface{}{
			"role":    role,
			"content": turn.Text,
		})
	}
	messages = append(messages, map[string]interface{}{
		"role":    "user",
		"content": req.UserText,
	})

	content, err := p.chatCompletion(ctx, messages, 0.7)
	if err != nil {
		return nil, err
	}

	return parseReply(content), nil
}

// SummarizeCall summarizes a transcript using OpenAI
func (p *OpenAIProvider) SummarizeCall(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("OpenAI provider not available")
	}

	systemPrompt := `You summarize phone call transcripts. Respond with JSON:
{"summary": "...", "tags": ["..."], "sentiment": "positive|neutral|negative"}`

	messages := []map[string]interface{}{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": req.Transcript},
	}

	content, err := p.chatCompletion(ctx, messages, 0.2)
	if err != nil {
		return nil, err
	}

	result := &SummarizeResponse{Provider: p.Name()}
	if err := json.Unmarshal([]byte(extractJSON(content)), result); err != nil {
		// Model did not return parseable JSON; keep the raw text as summary
		result.Summary = strings.TrimSpace(content)
	}
	result.Provider = p.Name()

	return result, nil
}

func (p *OpenAIProvider) chatCompletion(ctx context.Context, messages []map[string]interface{}, temperature float64) (string, error) {
	requestBody := map[string]interface{}{
		"model":       p.model,
		"messages":    messages,
		"max_tokens":  p.maxTokens,
		"temperature": temperature,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	client := &http.Client{Timeout: p.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API error: %d - %s", resp.StatusCode, string(body))
	}

	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	return strings.TrimSpace(openAIResp.Choices[0].Message.Content), nil
}

func buildSystemPrompt(req *RespondRequest) string {
	var parts []string

	if req.AgentPersona != "" {
		parts = append(parts, req.AgentPersona)
	} else {
		parts = append(parts, "You are a helpful phone assistant. Keep responses short and conversational, one or two sentences.")
	}

	for k, v := range req.TenantContext {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v))
	}

	parts = append(parts, `You are speaking on a live `+req.Channel+` call. If the caller asks for a human, append the marker [[transfer]] to your reply. If the caller asks to leave a message, append [[voicemail]]. If the caller asks to be called back later, append [[callback]]. If the conversation is finished, append [[end_call]].`)

	return strings.Join(parts, "\n")
}

// parseReply splits bracketed action markers out of the model's reply text.
func parseReply(content string) *RespondResponse {
	resp := &RespondResponse{Provider: "openai"}

	markers := map[string]string{
		"[[transfer]]":  ActionTransfer,
		"[[voicemail]]": ActionVoicemail,
		"[[callback]]":  ActionCallback,
		"[[end_call]]":  ActionEndCall,
	}

	for marker, actionType := range markers {
		if strings.Contains(content, marker) {
			content = strings.ReplaceAll(content, marker, "")
			resp.Actions = append(resp.Actions, Action{Type: actionType})
		}
	}

	resp.ReplyText = strings.TrimSpace(content)
	return resp
}

// extractJSON pulls the first {...} block from model output that may be
// wrapped in markdown fences or prose.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
