package casegen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// MockClient answers generation and judge prompts deterministically. The
// generated case repeats the question text in its history, so it satisfies
// every preservation check for the MCQ named in the prompt.
type MockClient struct {
	// Score is returned by the semantic judge.
	Score float64
	// Replies are returned in order, one per call, before any other
	// handling. Prompts records every prompt received.
	Replies []string
	Prompts []Prompt

	mu sync.Mutex
}

func NewMockClient() *MockClient {
	return &MockClient{Score: 85}
}

var (
	mockIDRe       = regexp.MustCompile(`ORIGINAL MCQ \(ID: (\d+)\)`)
	mockQuestionRe = regexp.MustCompile(`(?s)\nQuestion: (.*?)\nSubspecialty: ([^\n]*)`)
)

func (m *MockClient) Generate(_ context.Context, p Prompt) (*LLMResponse, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, p)
	if len(m.Replies) > 0 {
		reply := m.Replies[0]
		m.Replies = m.Replies[1:]
		m.mu.Unlock()
		return &LLMResponse{Content: reply, PromptTokens: len(p.User) / 4, OutputTokens: len(reply) / 4}, nil
	}
	m.mu.Unlock()

	if strings.Contains(p.User, judgeMarker) {
		out, _ := json.Marshal(map[string]interface{}{
			"score":       m.Score,
			"issues":      []string{},
			"explanation": "[Mock] The case teaches the same concept as the question.",
		})
		return &LLMResponse{Content: string(out), PromptTokens: 400, OutputTokens: 40}, nil
	}

	var id int64
	if match := mockIDRe.FindStringSubmatch(p.User); match != nil {
		id, _ = strconv.ParseInt(match[1], 10, 64)
	}
	question, subspecialty := "", ""
	if match := mockQuestionRe.FindStringSubmatch(p.User); match != nil {
		question = strings.TrimSpace(match[1])
		subspecialty = strings.TrimSpace(match[2])
	}
	if question == "" {
		return nil, fmt.Errorf("mock client: no question found in prompt")
	}

	body := map[string]interface{}{
		"source_mcq_id": id,
		"clinical_presentation": map[string]interface{}{
			"chief_complaint":         "[Mock] Presenting for evaluation of " + strings.ToLower(orDefault(subspecialty, "neurological")) + " symptoms",
			"history_present_illness": "[Mock] The referral letter reads: " + question + " The family adds that symptoms have been stable since onset.",
			"past_medical_history":    []string{"Hypertension"},
			"medications":             []string{"Amlodipine 5 mg daily"},
			"physical_examination":    "[Mock] Findings are as described in the referral.",
			"vital_signs":             map[string]string{"bp": "128/82", "hr": "76", "temp": "98.4"},
		},
		"question_prompt":     "[Mock] What is the most appropriate next step?",
		"core_concept_type":   orDefault(subspecialty, "General neurology") + " reasoning",
		"learning_objectives": []string{"Recognise the key findings", "Choose the next step"},
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, err
	}
	return &LLMResponse{Content: "```json\n" + string(out) + "\n```", PromptTokens: 1800, OutputTokens: 600}, nil
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
