package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// HFProvider calls the Hugging Face inference API for generation and
// feature extraction.
type HFProvider struct {
	keyName  string
	apiToken string
	genModel string
	embModel string
	client   *http.Client
}

func NewHFProvider(keyName string) *HFProvider {
	return &HFProvider{
		keyName:  keyName,
		apiToken: resolveHFToken(keyName),
		genModel: envOr("LEXRAG_HF_MODEL", "microsoft/DialoGPT-medium"),
		embModel: envOr("LEXRAG_HF_EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HFProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "hf", Model: h.embModel, Key: h.keyName}
	if h.apiToken == "" {
		return nil, info, fmt.Errorf("huggingface token missing for alias %q", h.keyName)
	}
	payload, _ := json.Marshal(map[string]any{"inputs": req.Inputs})
	url := "https://api-inference.huggingface.co/pipeline/feature-extraction/" + h.embModel
	body, err := h.post(ctx, url, payload)
	if err != nil {
		return nil, info, err
	}
	var parsed [][]float32
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode feature-extraction response: %w", err)
	}
	return parsed, info, nil
}

func (h *HFProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "hf", Model: h.genModel, Key: h.keyName}
	if h.apiToken == "" {
		return GenerateResponse{}, info, fmt.Errorf("huggingface token missing for alias %q", h.keyName)
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	payload, _ := json.Marshal(map[string]any{
		"inputs":     prompt,
		"parameters": map[string]any{"max_new_tokens": 256, "temperature": 0.2},
	})
	body, err := h.post(ctx, "https://api-inference.huggingface.co/models/"+h.genModel, payload)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	// The inference API returns either a list of generations or a single object.
	var asList []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &asList); err == nil && len(asList) > 0 {
		return GenerateResponse{Text: asList[0].GeneratedText}, info, nil
	}
	var asObject struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &asObject); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode generation response: %w", err)
	}
	return GenerateResponse{Text: asObject.GeneratedText}, info, nil
}

func (h *HFProvider) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+h.apiToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("huggingface error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func resolveHFToken(alias string) string {
	if alias != "" {
		k := os.Getenv("LEXRAG_HF_TOKEN_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	return os.Getenv("HF_API_TOKEN")
}

func envOr(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}
