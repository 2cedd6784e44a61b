package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

type fakeModel struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func testAdvisor(model contentGenerator) *Advisor {
	return &Advisor{model: model, modelName: "gemini-1.5-flash", logger: zap.NewNop()}
}

var input = &core.AdvisorInput{
	AccountEmail: "a@x.com",
	Stage:        core.StageRegistered,
	Vocabulary:   []string{"stalled_onboarding"},
}

func TestAdvisor_AssessAccount(t *testing.T) {
	model := &fakeModel{resp: textResponse(`{"factors":["stalled_onboarding"],`, `"explanation":"no activity"}`)}

	factors, err := testAdvisor(model).AssessAccount(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"stalled_onboarding"}, factors)
}

func TestAdvisor_Errors(t *testing.T) {
	_, err := testAdvisor(&fakeModel{err: errors.New("blocked")}).AssessAccount(context.Background(), input)
	assert.ErrorContains(t, err, "blocked")

	_, err = testAdvisor(&fakeModel{resp: &genai.GenerateContentResponse{}}).AssessAccount(context.Background(), input)
	assert.ErrorContains(t, err, "empty response")
}
