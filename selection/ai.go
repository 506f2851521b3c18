package selection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/envagent/envboot/fault"
)

// AIConfig locates an OpenAI-compatible chat completion endpoint.
type AIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Configured reports whether an endpoint is usable.
func (c AIConfig) Configured() bool {
	return c.BaseURL != "" && c.Model != ""
}

// AIClient implements the selection interfaces against a chat completion
// endpoint. Responses are expected to contain a JSON document, optionally
// inside a markdown fence.
type AIClient struct {
	config AIConfig
	http   *http.Client
}

func NewAIClient(config AIConfig) *AIClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &AIClient{config: config, http: httpClient}
}

var (
	_ Analyzer         = (*AIClient)(nil)
	_ ImageSelector    = (*AIClient)(nil)
	_ ResourceSelector = (*AIClient)(nil)
	_ DurationAdvisor  = (*AIClient)(nil)
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
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

func (c *AIClient) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.Backend, err, "chat completion request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fault.Wrap(fault.Backend, err, "failed to read chat completion response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.Backend, "chat completion endpoint answered %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fault.Wrap(fault.Backend, err, "malformed chat completion response")
	}
	if len(parsed.Choices) == 0 {
		return "", fault.New(fault.Backend, "chat completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ExtractJSON pulls the first JSON document out of a chat answer, stripping a
// surrounding markdown fence when present.
func ExtractJSON(answer string) (string, error) {
	s := strings.TrimSpace(answer)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fault.New(fault.Backend, "chat answer contains no JSON document")
	}
	return s[start:], nil
}

func (c *AIClient) Analyze(ctx context.Context, files map[string]string) (Requirements, error) {
	var prompt strings.Builder
	prompt.WriteString("Determine the hardware requirements for running this repository.\n")
	prompt.WriteString("Answer with a single JSON object with keys: cpu_cores, ram_gb, gpu_required, gpu_memory_gb, disk_gb, os_type, os_version, cuda_required, python_version, special_requirements.\n\n")
	for name, content := range files {
		fmt.Fprintf(&prompt, "--- %s ---\n%s\n\n", name, content)
	}

	answer, err := c.complete(ctx, "You size cloud hardware for software environments. Answer only with JSON.", prompt.String())
	if err != nil {
		return Requirements{}, err
	}
	doc, err := ExtractJSON(answer)
	if err != nil {
		return Requirements{}, err
	}
	return DecodeRequirements([]byte(doc))
}

func (c *AIClient) SelectImage(ctx context.Context, req Requirements, images []string) (string, error) {
	if len(images) == 0 {
		return "", fault.New(fault.NotFound, "no images available to select from")
	}

	reqJSON, _ := json.Marshal(req)
	prompt := fmt.Sprintf(
		"Requirements: %s\nAvailable images:\n%s\nAnswer with JSON: {\"image\": \"<name from the list>\"}",
		reqJSON, strings.Join(images, "\n"))

	answer, err := c.complete(ctx, "You pick the best matching cloud image. Answer only with JSON.", prompt)
	if err != nil {
		return "", err
	}
	doc, err := ExtractJSON(answer)
	if err != nil {
		return "", err
	}

	var choice struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal([]byte(doc), &choice); err != nil || choice.Image == "" {
		return "", fault.New(fault.Backend, "image selection answer is malformed")
	}
	for _, img := range images {
		if img == choice.Image {
			return choice.Image, nil
		}
	}
	return "", fault.New(fault.Backend, "image selection answered %q which is not in the offered list", choice.Image)
}

func (c *AIClient) SelectResource(ctx context.Context, req Requirements, nodeTypes []string) (string, string, error) {
	if len(nodeTypes) == 0 {
		return "", "", fault.New(fault.NotFound, "no node types available to select from")
	}

	reqJSON, _ := json.Marshal(req)
	prompt := fmt.Sprintf(
		"Requirements: %s\nAvailable node types:\n%s\nAnswer with JSON: {\"node_type\": \"<type from the list>\"}",
		reqJSON, strings.Join(nodeTypes, "\n"))

	answer, err := c.complete(ctx, "You pick the best matching bare-metal node type. Answer only with JSON.", prompt)
	if err != nil {
		return "", "", err
	}
	doc, err := ExtractJSON(answer)
	if err != nil {
		return "", "", err
	}

	var choice struct {
		NodeType string `json:"node_type"`
	}
	if err := json.Unmarshal([]byte(doc), &choice); err != nil || choice.NodeType == "" {
		return "", "", fault.New(fault.Backend, "resource selection answer is malformed")
	}
	return choice.NodeType, NodeTypeFilter(choice.NodeType), nil
}

func (c *AIClient) AdviseDuration(ctx context.Context, req Requirements) (time.Duration, error) {
	reqJSON, _ := json.Marshal(req)
	prompt := fmt.Sprintf(
		"Requirements: %s\nHow many hours should the hardware lease last? Answer with JSON: {\"hours\": <int>}",
		reqJSON)

	answer, err := c.complete(ctx, "You size lease durations for development environments. Answer only with JSON.", prompt)
	if err != nil {
		return 0, err
	}
	doc, err := ExtractJSON(answer)
	if err != nil {
		return 0, err
	}

	var choice struct {
		Hours int `json:"hours"`
	}
	if err := json.Unmarshal([]byte(doc), &choice); err != nil || choice.Hours <= 0 {
		return 0, fault.New(fault.Backend, "duration answer is malformed")
	}
	return time.Duration(choice.Hours) * time.Hour, nil
}
