package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/questlabs/quest-profile/pkg/ai"
)

// MinConfidence is the acceptance threshold: candidates below it never
// reach the conflict resolver or the confirmation queue.
const MinConfidence = 0.7

const extractionSystemPrompt = `You are a fact extraction assistant. Analyze the user's message and extract any relocation preferences or personal facts.

Extract ONLY if the user explicitly mentions these:
- destination: A country they want to move to (e.g., "I want to move to Slovenia")
- origin: Where they currently live (e.g., "I'm currently in the UK")
- timeline: When they want to move (e.g., "within 6 months", "next year")
- budget: Monthly budget for living expenses (e.g., "€2000/month")
- profession: Their job/career (e.g., "I'm a software developer")
- family_status: Family situation (e.g., "married with kids", "single")
- nationality: Their nationality/citizenship (e.g., "I'm British")

Respond ONLY with valid JSON. If no facts found, respond with: {"facts": []}

Example response:
{"facts": [{"type": "destination", "value": "Slovenia", "confidence": 0.9}]}

Important:
- Only extract facts the user EXPLICITLY states
- confidence should be 0.7-1.0 based on how clear the statement is
- Do NOT infer or guess - only extract what's directly stated`

// Candidate is one fact the model pulled out of a chat turn.
type Candidate struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type extractionResult struct {
	Facts []Candidate `json:"facts"`
}

// Extractor turns a single user message into typed fact candidates via
// one constrained LLM call. It never returns model garbage as an error:
// anything unparseable degrades to zero candidates.
type Extractor struct {
	logger *log.Logger
	ai     *ai.Service
	model  string
}

func NewExtractor(logger *log.Logger, aiService *ai.Service, model string) *Extractor {
	return &Extractor{
		logger: logger,
		ai:     aiService,
		model:  model,
	}
}

func (e *Extractor) ExtractFacts(ctx context.Context, userMessage string) ([]Candidate, error) {
	message, err := e.ai.ParamsCompletions(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(fmt.Sprintf("User message: %q", userMessage)),
		},
		Model: e.model,
		// Low temperature for consistent extraction
		Temperature: param.Opt[float64]{Value: 0.1},
		MaxTokens:   param.Opt[int64]{Value: 500},
	})
	if err != nil {
		return nil, err
	}

	candidates := parseCandidates(e.logger, message.Content)
	return candidates, nil
}

// parseCandidates extracts the JSON body from the model output, tolerating
// markdown code fences, and drops entries that are structurally unusable.
// Malformed output yields an empty list, never an error.
func parseCandidates(logger *log.Logger, content string) []Candidate {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result extractionResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		logger.Warn("Failed to parse fact extraction output, treating as empty", "error", err)
		return nil
	}

	valid := make([]Candidate, 0, len(result.Facts))
	for _, candidate := range result.Facts {
		if candidate.Type == "" || candidate.Value == "" {
			continue
		}
		if candidate.Confidence < 0 || candidate.Confidence > 1 {
			continue
		}
		valid = append(valid, candidate)
	}
	return valid
}
