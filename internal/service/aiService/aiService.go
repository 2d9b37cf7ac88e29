package aiService

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/externalApi/openaiApi"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

const (
	historyDepth = 250

	settingAPIKey  = "OPENAI_API_KEY"
	settingAPIBase = "OPENAI_API_BASE"
	settingModel   = "AI_MODEL_NAME"
)

type OpenaiApi interface {
	Chat(ctx context.Context, params openaiApi.ChatParams) (string, error)
}

type FundService interface {
	GetValuation(ctx context.Context, code string) (model.Valuation, error)
	GetHistory(ctx context.Context, code string, limit int) ([]model.FundHistoryPoint, error)
}

type SettingsService interface {
	GetRawSetting(ctx context.Context, key string, userID int64) (string, error)
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error

	GetPrompts(ctx context.Context) ([]dbModel.Prompt, error)
	GetPrompt(ctx context.Context, promptID int64) (dbModel.Prompt, error)
	GetDefaultPrompt(ctx context.Context) (dbModel.Prompt, error)
	CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error)
	UpdatePrompt(ctx context.Context, promptID int64, name, systemPrompt, userPrompt string, isDefault bool) error
	ClearDefaultPrompt(ctx context.Context, exceptID int64) error
	DeletePrompt(ctx context.Context, promptID int64) error

	InsertAnalysisHistory(ctx context.Context, h dbModel.AnalysisHistory) error
	GetAnalysisHistory(ctx context.Context, code string, limit int) ([]dbModel.AnalysisHistory, error)
	DeleteAnalysisHistory(ctx context.Context, historyID int64) error
}

type AiService struct {
	repo            Repository
	fundService     FundService
	settingsService SettingsService
	openaiApi       OpenaiApi
}

func New(repo Repository, fundService FundService, settingsService SettingsService, openaiApi OpenaiApi) *AiService {
	return &AiService{
		repo:            repo,
		fundService:     fundService,
		settingsService: settingsService,
		openaiApi:       openaiApi,
	}
}

// analysisReply is the strict-JSON shape the prompt instructs the model to
// produce.
type analysisReply struct {
	Summary        string   `json:"summary"`
	RiskLevel      string   `json:"risk_level"`
	AnalysisReport string   `json:"analysis_report"`
	Suggestions    []string `json:"suggestions"`
}

// AnalyzeFund builds the fund data packet, runs it through the configured
// chat model and persists the parsed verdict. A missing API key yields an
// explanatory placeholder instead of an error.
func (s *AiService) AnalyzeFund(ctx context.Context, code string, promptID int64, userID int64) (model.Analysis, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AiService.AnalyzeFund"

	slog.Debug("AnalyzeFund start", slog.String("rqID", rqID), slog.String("op", op), slog.String("code", code))
	defer func() {
		slog.Debug("AnalyzeFund finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	apiKey, err := s.settingsService.GetRawSetting(ctx, settingAPIKey, userID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return model.Analysis{}, err
	}
	if apiKey == "" {
		return model.Analysis{
			Code:      code,
			Summary:   "AI analysis is not configured. Set OPENAI_API_KEY in settings to enable it.",
			RiskLevel: "unknown",
			Timestamp: time.Now().Format(time.RFC3339),
		}, nil
	}

	baseURL, err := s.settingsService.GetRawSetting(ctx, settingAPIBase, userID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return model.Analysis{}, err
	}
	modelName, err := s.settingsService.GetRawSetting(ctx, settingModel, userID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return model.Analysis{}, err
	}

	prompt, err := s.resolvePrompt(ctx, promptID)
	if err != nil {
		return model.Analysis{}, err
	}

	userPrompt, err := s.buildPrompt(ctx, code, prompt.UserPrompt)
	if err != nil {
		return model.Analysis{}, err
	}

	rawReply, err := s.openaiApi.Chat(ctx, openaiApi.ChatParams{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        modelName,
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		slog.Error("got error from openaiApi.Chat", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Analysis{}, err
	}

	reply := analysisReply{}
	if err = json.Unmarshal([]byte(stripCodeFences(rawReply)), &reply); err != nil {
		slog.Error("can't parse model reply as strict JSON", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Analysis{}, fmt.Errorf("model reply is not valid JSON: %w", err)
	}

	analysis := model.Analysis{
		Code:           code,
		Summary:        reply.Summary,
		RiskLevel:      reply.RiskLevel,
		AnalysisReport: reply.AnalysisReport,
		Suggestions:    reply.Suggestions,
		Timestamp:      time.Now().Format(time.RFC3339),
	}

	suggestionsJson, err := json.Marshal(reply.Suggestions)
	if err != nil {
		suggestionsJson = []byte("[]")
	}

	history := dbModel.AnalysisHistory{
		Code:           code,
		Summary:        reply.Summary,
		RiskLevel:      reply.RiskLevel,
		AnalysisReport: reply.AnalysisReport,
		Suggestions:    string(suggestionsJson),
	}
	if err = s.repo.InsertAnalysisHistory(ctx, history); err != nil {
		slog.Error("got error from repo.InsertAnalysisHistory", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return analysis, nil
}

func (s *AiService) resolvePrompt(ctx context.Context, promptID int64) (dbModel.Prompt, error) {
	if promptID > 0 {
		prompt, err := s.repo.GetPrompt(ctx, promptID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return dbModel.Prompt{}, service.ErrNotFound
			}
			return dbModel.Prompt{}, err
		}
		return prompt, nil
	}

	prompt, err := s.repo.GetDefaultPrompt(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dbModel.Prompt{}, service.ErrNotFound
		}
		return dbModel.Prompt{}, err
	}
	return prompt, nil
}

// buildPrompt fills the template placeholders with the fund's live data and
// a history digest covering min/max/latest NAV and the range position.
func (s *AiService) buildPrompt(ctx context.Context, code, template string) (string, error) {
	valuation, err := s.fundService.GetValuation(ctx, code)
	if err != nil {
		return "", err
	}

	points, err := s.fundService.GetHistory(ctx, code, historyDepth)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return "", err
	}

	replacements := map[string]string{
		"{fund_code}":       code,
		"{fund_name}":       valuation.Name,
		"{fund_type}":       "",
		"{nav}":             valuation.Nav.String(),
		"{estimate}":        valuation.Estimate.String(),
		"{est_rate}":        valuation.EstRate.String(),
		"{history_summary}": summarizeHistory(points),
	}

	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result, nil
}

func summarizeHistory(points []model.FundHistoryPoint) string {
	if len(points) == 0 {
		return "no history available"
	}

	minNav, maxNav := points[0].Nav, points[0].Nav
	for _, p := range points[1:] {
		if p.Nav.LessThan(minNav) {
			minNav = p.Nav
		}
		if p.Nav.GreaterThan(maxNav) {
			maxNav = p.Nav
		}
	}

	latest := points[len(points)-1]

	// Range position: where the latest NAV sits inside the observed window,
	// 0% at the low, 100% at the high.
	rangePosition := "n/a"
	if spread := maxNav.Sub(minNav); spread.IsPositive() {
		rangePosition = latest.Nav.Sub(minNav).
			Div(spread).
			Mul(decimal.NewFromInt(100)).
			Round(1).String() + "%"
	}

	return fmt.Sprintf(
		"%d trading days, min %s, max %s, latest %s (%s), range position %s",
		len(points), minNav.String(), maxNav.String(), latest.Nav.String(), latest.Date, rangePosition,
	)
}

func stripCodeFences(reply string) string {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```") {
		reply = strings.TrimPrefix(reply, "```json")
		reply = strings.TrimPrefix(reply, "```")
		reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	}
	return strings.TrimSpace(reply)
}

func (s *AiService) GetPrompts(ctx context.Context) ([]model.Prompt, error) {
	dbPrompts, err := s.repo.GetPrompts(ctx)
	if err != nil {
		return nil, err
	}

	prompts := make([]model.Prompt, 0, len(dbPrompts))
	for _, p := range dbPrompts {
		prompts = append(prompts, dbConverter.ConvertPrompt(p))
	}
	return prompts, nil
}

// CreatePrompt inserts a template. Creating it as default demotes the
// previous default in the same transaction.
func (s *AiService) CreatePrompt(ctx context.Context, name, systemPrompt, userPrompt string, isDefault bool) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AiService.CreatePrompt"

	slog.Debug("CreatePrompt start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name))
	defer func() {
		slog.Debug("CreatePrompt finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if name == "" || userPrompt == "" {
		return 0, service.ErrValidation
	}

	var promptID int64
	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		promptID, err = s.repo.CreatePrompt(ctx, name, systemPrompt, userPrompt, isDefault)
		if err != nil {
			return err
		}
		if isDefault {
			return s.repo.ClearDefaultPrompt(ctx, promptID)
		}
		return nil
	})
	if err != nil {
		slog.Error("can't create prompt", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return promptID, nil
}

func (s *AiService) UpdatePrompt(ctx context.Context, promptID int64, name, systemPrompt, userPrompt string, isDefault bool) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AiService.UpdatePrompt"

	slog.Debug("UpdatePrompt start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("promptID", promptID))
	defer func() {
		slog.Debug("UpdatePrompt finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if name == "" || userPrompt == "" {
		return service.ErrValidation
	}

	// Demoting the only default is refused so exactly one default survives.
	if !isDefault {
		current, err := s.repo.GetPrompt(ctx, promptID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return service.ErrNotFound
			}
			return err
		}
		if current.IsDefault {
			return service.ErrValidation
		}
	}

	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdatePrompt(ctx, promptID, name, systemPrompt, userPrompt, isDefault); err != nil {
			return err
		}
		if isDefault {
			return s.repo.ClearDefaultPrompt(ctx, promptID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		slog.Error("can't update prompt", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// DeletePrompt removes a template. The default prompt is not deletable.
func (s *AiService) DeletePrompt(ctx context.Context, promptID int64) error {
	prompt, err := s.repo.GetPrompt(ctx, promptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}
	if prompt.IsDefault {
		return service.ErrForbidden
	}

	return s.repo.DeletePrompt(ctx, promptID)
}

func (s *AiService) GetAnalysisHistory(ctx context.Context, code string, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}

	dbHistory, err := s.repo.GetAnalysisHistory(ctx, code, limit)
	if err != nil {
		return nil, err
	}

	history := make([]model.Analysis, 0, len(dbHistory))
	for _, h := range dbHistory {
		analysis := model.Analysis{
			ID:             h.ID,
			Code:           h.Code,
			Summary:        h.Summary,
			RiskLevel:      h.RiskLevel,
			AnalysisReport: h.AnalysisReport,
			Timestamp:      h.CreatedAt.Format(time.RFC3339),
		}
		_ = json.Unmarshal([]byte(h.Suggestions), &analysis.Suggestions)
		history = append(history, analysis)
	}

	return history, nil
}

func (s *AiService) DeleteAnalysisHistory(ctx context.Context, historyID int64) error {
	return s.repo.DeleteAnalysisHistory(ctx, historyID)
}
