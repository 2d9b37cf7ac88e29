package openaiApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tiangangQiu/FundVal-Live/config"
	"github.com/tiangangQiu/FundVal-Live/utils"
)

type OpenaiApi struct {
	client *resty.Client
}

// ChatParams carries the provider credentials alongside the prompt pair.
// Credentials come from runtime settings, not the process environment, so the
// caller resolves them on every request.
type ChatParams struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func New(cfg *config.Config) *OpenaiApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout)
	return &OpenaiApi{client: client}
}

func (a *OpenaiApi) Chat(ctx context.Context, params ChatParams) (string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := strings.TrimSuffix(params.BaseURL, "/") + "/chat/completions"

	reqBody := chatRequest{
		Model: params.Model,
		Messages: []chatMessage{
			{Role: "system", Content: params.SystemPrompt},
			{Role: "user", Content: params.UserPrompt},
		},
	}

	slog.Debug("start OpenaiApi.Chat request", slog.String("rqID", rqID), slog.String("model", params.Model))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+params.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(url)
	if err != nil {
		slog.Error("error while dialing chat completions api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", err
	}

	chatResp := chatResponse{}
	if err = json.Unmarshal(resp.Body(), &chatResp); err != nil {
		slog.Error("can't unmarshal chat completions response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", err
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("chat completions api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat completions api returned no choices, status %d", resp.StatusCode())
	}

	slog.Debug("OpenaiApi.Chat request complete", slog.String("rqID", rqID))

	return chatResp.Choices[0].Message.Content, nil
}
