package aiService

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/openaiApi"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

type fakeAiRepo struct {
	prompts  map[int64]dbModel.Prompt
	nextID   int64
	history  []dbModel.AnalysisHistory
}

func newFakeAiRepo() *fakeAiRepo {
	return &fakeAiRepo{prompts: make(map[int64]dbModel.Prompt)}
}

func (r *fakeAiRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	return tFunc(ctx)
}

func (r *fakeAiRepo) GetPrompts(ctx context.Context) ([]dbModel.Prompt, error) {
	var out []dbModel.Prompt
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeAiRepo) GetPrompt(ctx context.Context, promptID int64) (dbModel.Prompt, error) {
	p, ok := r.prompts[promptID]
	if !ok {
		return dbModel.Prompt{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakeAiRepo) GetDefaultPrompt(ctx context.Context) (dbModel.Prompt, error) {
	for _, p := range r.prompts {
		if p.IsDefault {
			return p, nil
		}
	}
	return dbModel.Prompt{}, repository.ErrNotFound
}

func (r *fakeAiRepo) CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error) {
	r.nextID++
	r.prompts[r.nextID] = dbModel.Prompt{
		ID:           r.nextID,
		Name:         name,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		IsDefault:    isDefault,
	}
	return r.nextID, nil
}

func (r *fakeAiRepo) UpdatePrompt(ctx context.Context, promptID int64, name, systemPrompt, userPrompt string, isDefault bool) error {
	p, ok := r.prompts[promptID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Name, p.SystemPrompt, p.UserPrompt, p.IsDefault = name, systemPrompt, userPrompt, isDefault
	r.prompts[promptID] = p
	return nil
}

func (r *fakeAiRepo) ClearDefaultPrompt(ctx context.Context, exceptID int64) error {
	for id, p := range r.prompts {
		if id != exceptID && p.IsDefault {
			p.IsDefault = false
			r.prompts[id] = p
		}
	}
	return nil
}

func (r *fakeAiRepo) DeletePrompt(ctx context.Context, promptID int64) error {
	delete(r.prompts, promptID)
	return nil
}

func (r *fakeAiRepo) InsertAnalysisHistory(ctx context.Context, h dbModel.AnalysisHistory) error {
	r.history = append(r.history, h)
	return nil
}

func (r *fakeAiRepo) GetAnalysisHistory(ctx context.Context, code string, limit int) ([]dbModel.AnalysisHistory, error) {
	return r.history, nil
}

func (r *fakeAiRepo) DeleteAnalysisHistory(ctx context.Context, historyID int64) error {
	return nil
}

type fakeAiFunds struct{}

func (fakeAiFunds) GetValuation(ctx context.Context, code string) (model.Valuation, error) {
	return model.Valuation{
		Code:     code,
		Name:     "Test Fund",
		Nav:      decimal.RequireFromString("1.05"),
		Estimate: decimal.RequireFromString("1.07"),
		EstRate:  decimal.RequireFromString("1.9"),
	}, nil
}

func (fakeAiFunds) GetHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error) {
	return []model.FundHistoryPoint{
		{Date: "2026-08-25", Nav: decimal.RequireFromString("1.00")},
		{Date: "2026-08-26", Nav: decimal.RequireFromString("1.10")},
		{Date: "2026-08-27", Nav: decimal.RequireFromString("1.05")},
	}, nil
}

type fakeSettings struct {
	values map[string]string
}

func (f fakeSettings) GetRawSetting(ctx context.Context, key string, userID int64) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", service.ErrNotFound
	}
	return value, nil
}

type fakeChat struct {
	reply      string
	lastParams openaiApi.ChatParams
}

func (f *fakeChat) Chat(ctx context.Context, params openaiApi.ChatParams) (string, error) {
	f.lastParams = params
	return f.reply, nil
}

func configuredSettings() fakeSettings {
	return fakeSettings{values: map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"OPENAI_API_BASE": "https://api.openai.com/v1",
		"AI_MODEL_NAME":   "gpt-4o-mini",
	}}
}

func TestAnalyzeFundWithoutKeyReturnsPlaceholder(t *testing.T) {
	srv := New(newFakeAiRepo(), fakeAiFunds{}, fakeSettings{values: map[string]string{}}, &fakeChat{})

	analysis, err := srv.AnalyzeFund(context.Background(), "000001", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "unknown", analysis.RiskLevel)
	assert.Contains(t, analysis.Summary, "not configured")
}

func TestAnalyzeFundParsesReply(t *testing.T) {
	repo := newFakeAiRepo()
	_, err := repo.CreatePrompt(context.Background(), "default", "You are an analyst.", "Analyze {fund_code} {fund_name}.", true)
	require.NoError(t, err)

	chat := &fakeChat{reply: "```json\n{\"summary\":\"steady\",\"risk_level\":\"medium\",\"analysis_report\":\"report\",\"suggestions\":[\"hold\"]}\n```"}
	srv := New(repo, fakeAiFunds{}, configuredSettings(), chat)

	analysis, err := srv.AnalyzeFund(context.Background(), "000001", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "steady", analysis.Summary)
	assert.Equal(t, "medium", analysis.RiskLevel)
	assert.Equal(t, []string{"hold"}, analysis.Suggestions)

	// placeholders resolved into the user prompt
	assert.Contains(t, chat.lastParams.UserPrompt, "000001")
	assert.Contains(t, chat.lastParams.UserPrompt, "Test Fund")
	assert.Equal(t, "sk-test", chat.lastParams.APIKey)
	assert.Equal(t, "gpt-4o-mini", chat.lastParams.Model)

	// verdict persisted
	require.Len(t, repo.history, 1)
	assert.Equal(t, "medium", repo.history[0].RiskLevel)
	assert.Equal(t, `["hold"]`, repo.history[0].Suggestions)
}

func TestAnalyzeFundRejectsNonJSONReply(t *testing.T) {
	repo := newFakeAiRepo()
	_, err := repo.CreatePrompt(context.Background(), "default", "", "Analyze {fund_code}.", true)
	require.NoError(t, err)

	srv := New(repo, fakeAiFunds{}, configuredSettings(), &fakeChat{reply: "the fund looks fine to me"})

	_, err = srv.AnalyzeFund(context.Background(), "000001", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestAnalyzeFundNoDefaultPrompt(t *testing.T) {
	srv := New(newFakeAiRepo(), fakeAiFunds{}, configuredSettings(), &fakeChat{})

	_, err := srv.AnalyzeFund(context.Background(), "000001", 0, 0)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCreatePromptDemotesPreviousDefault(t *testing.T) {
	repo := newFakeAiRepo()
	srv := New(repo, fakeAiFunds{}, configuredSettings(), &fakeChat{})

	firstID, err := srv.CreatePrompt(context.Background(), "first", "", "p1", true)
	require.NoError(t, err)
	secondID, err := srv.CreatePrompt(context.Background(), "second", "", "p2", true)
	require.NoError(t, err)

	assert.False(t, repo.prompts[firstID].IsDefault)
	assert.True(t, repo.prompts[secondID].IsDefault)
}

func TestUpdatePromptRefusesDemotingSoleDefault(t *testing.T) {
	repo := newFakeAiRepo()
	srv := New(repo, fakeAiFunds{}, configuredSettings(), &fakeChat{})

	promptID, err := srv.CreatePrompt(context.Background(), "only", "", "p", true)
	require.NoError(t, err)

	err = srv.UpdatePrompt(context.Background(), promptID, "only", "", "p", false)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestDeletePromptProtectsDefault(t *testing.T) {
	repo := newFakeAiRepo()
	srv := New(repo, fakeAiFunds{}, configuredSettings(), &fakeChat{})

	defaultID, err := srv.CreatePrompt(context.Background(), "default", "", "p", true)
	require.NoError(t, err)
	otherID, err := srv.CreatePrompt(context.Background(), "other", "", "p", false)
	require.NoError(t, err)

	assert.ErrorIs(t, srv.DeletePrompt(context.Background(), defaultID), service.ErrForbidden)
	assert.NoError(t, srv.DeletePrompt(context.Background(), otherID))
}

func TestCreatePromptValidation(t *testing.T) {
	srv := New(newFakeAiRepo(), fakeAiFunds{}, configuredSettings(), &fakeChat{})

	_, err := srv.CreatePrompt(context.Background(), "", "", "p", false)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = srv.CreatePrompt(context.Background(), "name", "", "", false)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestSummarizeHistory(t *testing.T) {
	points := []model.FundHistoryPoint{
		{Date: "2026-08-25", Nav: decimal.RequireFromString("1.00")},
		{Date: "2026-08-26", Nav: decimal.RequireFromString("1.20")},
		{Date: "2026-08-27", Nav: decimal.RequireFromString("1.10")},
	}

	summary := summarizeHistory(points)

	assert.Contains(t, summary, "3 trading days")
	assert.Contains(t, summary, "min 1")
	assert.Contains(t, summary, "max 1.2")
	// (1.10 - 1.00) / (1.20 - 1.00) = 50%
	assert.Contains(t, summary, "range position 50%")

	assert.Equal(t, "no history available", summarizeHistory(nil))
}
