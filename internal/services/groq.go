// Groq chat-completions implementation of [Recommender]
//
// Uses the OpenAI-compatible endpoint with JSON response formatting to get
// curated track suggestions for a seed set.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/musikai/musikd/internal/shared"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "llama-3.3-70b-versatile"

	// maxPromptSeeds bounds how many seed tracks are listed in the prompt.
	maxPromptSeeds = 15
)

const curatorSystemPrompt = "You are an expert music curator with encyclopedic knowledge of music genres, " +
	"artists, and songs. You specialize in finding songs that match specific genres and vibes. " +
	"You only recommend real, existing songs that can be found on Spotify. Always respond with valid JSON only."

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponseFormat struct {
	Type string `json:"type"`
}

type groqChatRequest struct {
	Model          string             `json:"model"`
	Messages       []groqMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat groqResponseFormat `json:"response_format"`
}

type groqChatResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GroqService implements [Recommender] via the Groq LLM API.
type GroqService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGroqService creates a Groq recommendation client. baseURL overrides
// the API root for tests.
func NewGroqService(apiKey, model string, httpClient *http.Client, baseURL string) *GroqService {
	if model == "" {
		model = groqDefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = groqBaseURL
	}

	return &GroqService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Suggest asks the LLM for up to limit tracks matching the seed set's
// genre, era and energy.
//
// Failures surface as [shared.ErrRecommendationUnavailable]; an empty seed
// set is [shared.ErrInsufficientSeed]. Neither is retried here.
func (g *GroqService) Suggest(ctx context.Context, seeds []SeedTrack, limit int) ([]Suggestion, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seed tracks provided", shared.ErrInsufficientSeed)
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: groq api key not configured", shared.ErrRecommendationUnavailable)
	}
	if limit <= 0 {
		limit = 15
	}

	reqBody := groqChatRequest{
		Model: g.model,
		Messages: []groqMessage{
			{Role: "system", Content: curatorSystemPrompt},
			{Role: "user", Content: curatorPrompt(seeds, limit)},
		},
		Temperature:    0.5,
		ResponseFormat: groqResponseFormat{Type: "json_object"},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRecommendationUnavailable, err)
	}
	defer resp.Body.Close()

	var chatResp groqChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrRecommendationUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if chatResp.Error != nil && chatResp.Error.Message != "" {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, chatResp.Error.Message)
		}
		return nil, fmt.Errorf("%w: groq api %s", shared.ErrRecommendationUnavailable, detail)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: groq returned no choices", shared.ErrRecommendationUnavailable)
	}

	suggestions, err := parseSuggestions(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRecommendationUnavailable, err)
	}

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	return suggestions, nil
}

func curatorPrompt(seeds []SeedTrack, limit int) string {
	var list strings.Builder
	for i, seed := range seeds {
		if i >= maxPromptSeeds {
			break
		}
		fmt.Fprintf(&list, "- %s by %s\n", seed.Name, seed.Artist)
	}

	return fmt.Sprintf(`You are an expert music curator with deep knowledge of genres, subgenres, and music similarity.

ANALYZE THIS PLAYLIST:
%s
CRITICAL REQUIREMENTS:
1. **GENRE CONSISTENCY**: First identify the dominant genre(s) of the playlist
2. **STAY IN GENRE**: ALL recommendations MUST be from the same genre or closely related subgenres
3. **REAL SONGS ONLY**: Only recommend songs that actually exist on Spotify
4. **SIMILAR ARTISTS**: Prioritize artists with similar sound/style to those in the playlist
5. **ERA CONSISTENCY**: Match the time period (90s, 2000s, 2010s, modern, etc.)
6. **ENERGY MATCH**: Match the energy level (chill, upbeat, aggressive, mellow)
7. **ARTIST DIVERSITY**: Maximum 2 songs per artist
8. **POPULARITY MIX**: Include both popular and lesser-known tracks

OUTPUT FORMAT:
Return ONLY a JSON array with objects containing "name" and "artist" fields.
DO NOT include explanations, reasoning, or any text outside the JSON.

Example: [{"name": "Song Name", "artist": "Artist Name"}]

Now provide exactly %d recommendations that match the genre and vibe:`, list.String(), limit)
}

// parseSuggestions decodes the LLM's reply, tolerating both a bare array
// and an object wrapping the array under a conventional key.
func parseSuggestions(content string) ([]Suggestion, error) {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid llm response: %v", err)
	}

	if wrapped, ok := raw.(map[string]any); ok {
		for _, key := range []string{"recommendations", "songs", "tracks", "playlist"} {
			if inner, found := wrapped[key]; found {
				raw = inner
				break
			}
		}
	}

	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("llm response is not a list")
	}

	suggestions := make([]Suggestion, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		name, _ := obj["name"].(string)
		artist, _ := obj["artist"].(string)
		if name == "" || artist == "" {
			continue
		}
		// The output-format example sometimes gets echoed back verbatim.
		if name == "Song Name" || name == "Song Title" || artist == "Artist Name" {
			continue
		}

		suggestions = append(suggestions, Suggestion{Name: name, Artist: artist})
	}

	if len(suggestions) == 0 {
		return nil, fmt.Errorf("llm returned no usable suggestions")
	}

	return suggestions, nil
}
