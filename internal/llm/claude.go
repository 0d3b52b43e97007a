package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	claudeName     = "anthropic"
	claudeToolName = "record_result"
)

// ClaudeClient calls the Anthropic Messages API. Structured output is
// obtained by forcing a single tool call whose input schema is the
// response schema.
type ClaudeClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClaudeClient(apiKey, baseURL string) *ClaudeClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &ClaudeClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

var _ Backend = (*ClaudeClient)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature *float64             `json:"temperature,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// InvokeStructured implements Backend.
func (c *ClaudeClient) InvokeStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	maxTokens := req.Params.NumPredict
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temp := req.Params.Temperature
	reqBody := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}
	if req.Schema != nil {
		reqBody.Tools = []anthropicTool{{
			Name:        claudeToolName,
			Description: "Record the structured result of the task.",
			InputSchema: req.Schema,
		}}
		reqBody.ToolChoice = &anthropicToolChoice{Type: "tool", Name: claudeToolName}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(claudeName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportError(claudeName, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(claudeName, resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, malformed(claudeName, string(respBody), err)
	}
	if apiResp.Error != nil {
		return nil, &InferenceError{
			Backend: claudeName,
			Kind:    KindServer,
			Message: apiResp.Error.Type + ": " + apiResp.Error.Message,
		}
	}

	for _, block := range apiResp.Content {
		if block.Type == "tool_use" && len(block.Input) > 0 {
			return block.Input, nil
		}
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" && block.Text != "" {
			return decodeContent(claudeName, block.Text)
		}
	}
	return nil, malformed(claudeName, string(respBody), fmt.Errorf("empty response from claude"))
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
