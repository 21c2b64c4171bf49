package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultModel       = "gemini-1.5-flash-latest"
	defaultTemperature = 0.6
	maxOutputTokens    = 256
)

const systemInstruction = `You are a supportive journaling companion inside a mood tracking app.
Keep replies short, warm and concrete. Never give medical advice.`

// Config controls how the Google Generative Language API client behaves.
type Config struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Client generates mood reflections with the Google Generative Language API. The last reply
// is kept so an unchanged history does not cost another request.
type Client struct {
	genClient *genai.Client
	generate  generateFunc

	mu        sync.Mutex
	lastKey   string
	lastReply string
}

// NewClient validates the provided configuration and prepares a Client instance.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(defaultTemperature)
	model.SetMaxOutputTokens(maxOutputTokens)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))

	return &Client{genClient: client, generate: modelGenerate(model)}, nil
}

func modelGenerate(model *genai.GenerativeModel) generateFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("google api error: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("google api returned no candidates")
		}
		var parts []string
		for _, part := range resp.Candidates[0].Content.Parts {
			if text := extractTextPart(part); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			return "", fmt.Errorf("google api returned empty response")
		}
		return strings.Join(parts, "\n"), nil
	}
}

// cached returns the stored reply for key, if any.
func (c *Client) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" || key != c.lastKey {
		return "", false
	}
	return c.lastReply, true
}

func (c *Client) remember(key, reply string) {
	c.mu.Lock()
	c.lastKey = key
	c.lastReply = reply
	c.mu.Unlock()
}

func extractTextPart(part genai.Part) string {
	switch v := part.(type) {
	case genai.Text:
		return strings.TrimSpace(string(v))
	default:
		return ""
	}
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c == nil || c.genClient == nil {
		return nil
	}
	return c.genClient.Close()
}
