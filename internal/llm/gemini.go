package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiName = "gemini"

// Gemini calls the Gemini API through the genai SDK with a JSON response
// schema.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend. baseURL is optional.
func NewGemini(ctx context.Context, apiKey, baseURL string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

var _ Backend = (*Gemini)(nil)

// InvokeStructured implements Backend.
func (g *Gemini) InvokeStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(req.Params.Temperature)),
	}
	if req.Schema != nil {
		genCfg.ResponseJsonSchema = req.Schema
	}
	if req.Params.NumPredict > 0 {
		genCfg.MaxOutputTokens = int32(req.Params.NumPredict)
	}
	if req.Params.Seed != nil {
		genCfg.Seed = genai.Ptr(int32(*req.Params.Seed))
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return nil, geminiError(err)
	}
	return decodeContent(geminiName, resp.Text())
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ie := statusError(geminiName, apiErr.Code, apiErr.Message)
		ie.Err = err
		return ie
	}
	return transportError(geminiName, err)
}
