package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mikey/bgc-lifecycle/internal/utils"
)

// AdvisorInput is the account history handed to a RiskAdvisor
type AdvisorInput struct {
	AccountEmail string
	Stage        Stage
	Events       []AccountEmailEvent
	Vocabulary   []string
}

// AdvisorResponse is the JSON object advisors are asked to reply with
type AdvisorResponse struct {
	Factors     []string `json:"factors"`
	Explanation string   `json:"explanation"`
}

const advisorPromptFormat = `You are a risk reviewer for background-check onboarding.
Review the lifecycle history of the account below and pick which of the
allowed risk factors apply. Only use labels from the allowed list.
Respond with a JSON object containing:
- factors: array of strings (allowed labels that apply, may be empty)
- explanation: string (one sentence)

Allowed factors: %s

Account: %s
Current stage: %s
History:
%s

Respond only with the JSON object and nothing else.`

// FormatAdvisorPrompt renders the prompt shared by every LLM advisor
func FormatAdvisorPrompt(input *AdvisorInput, text *utils.TextProcessor, maxSize int) string {
	var history strings.Builder
	for _, ev := range input.Events {
		fmt.Fprintf(&history, "- %s %s: %s\n", ev.EventDate.UTC().Format(time.RFC3339), ev.EventType, ev.SourceSubject)
	}
	body := history.String()
	if text != nil {
		body = text.ProcessText(body, maxSize)
	}
	return fmt.Sprintf(advisorPromptFormat,
		strings.Join(input.Vocabulary, ", "),
		input.AccountEmail,
		input.Stage,
		body)
}

// ParseAdvisorResponse extracts the factor labels from an LLM reply and
// keeps only those in the vocabulary
func ParseAdvisorResponse(responseText string, vocabulary []string) ([]string, error) {
	var resp AdvisorResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		jsonStr, extractErr := utils.ExtractJSON(responseText)
		if extractErr != nil {
			return nil, fmt.Errorf("failed to extract JSON from advisor response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse advisor response as JSON: %w", err)
		}
	}

	allowed := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		allowed[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	factors := make([]string, 0, len(resp.Factors))
	for _, f := range resp.Factors {
		label := strings.ToLower(strings.TrimSpace(f))
		if _, ok := allowed[label]; ok {
			factors = append(factors, label)
		}
	}
	return factors, nil
}
