package model

type Prompt struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	IsDefault    bool   `json:"is_default"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Analysis is the parsed AI verdict on a fund.
type Analysis struct {
	ID             int64    `json:"id,omitempty"`
	Code           string   `json:"code,omitempty"`
	Summary        string   `json:"summary"`
	RiskLevel      string   `json:"risk_level"`
	AnalysisReport string   `json:"analysis_report"`
	Suggestions    []string `json:"suggestions,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

type AnalyzeFundRequest struct {
	FundInfo map[string]any `json:"fund_info"`
	PromptID int64          `json:"prompt_id,omitempty"`
}
