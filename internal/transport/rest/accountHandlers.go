package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

func accountIDFromQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("account_id")
	if raw == "" {
		return model.DefaultAccountID, nil
	}
	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || accountID < 0 {
		return 0, service.ErrValidation
	}
	return accountID, nil
}

func (c *Controller) getAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := c.accountService.GetAccounts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, accounts)
}

func (c *Controller) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	accountID, err := c.accountService.CreateAccount(r.Context(), req.Name, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": accountID})
}

func (c *Controller) updateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.accountService.UpdateAccount(r.Context(), accountID, req.Name, req.Description); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.accountService.DeleteAccount(r.Context(), accountID); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) getPositions(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := c.accountService.GetPositionsReport(r.Context(), accountID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (c *Controller) getAggregatePositions(w http.ResponseWriter, r *http.Request) {
	report, err := c.accountService.GetPositionsReport(r.Context(), model.AggregateAccountID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (c *Controller) upsertPosition(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Code   string          `json:"code"`
		Cost   decimal.Decimal `json:"cost"`
		Shares decimal.Decimal `json:"shares"`
	}
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	if err = c.accountService.SetPosition(r.Context(), accountID, req.Code, req.Cost, req.Shares); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) deletePosition(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err = c.accountService.DeletePosition(r.Context(), accountID, chi.URLParam(r, "code")); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (c *Controller) addLot(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	result, err := c.accountService.AddLot(r.Context(), accountID, chi.URLParam(r, "code"), req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (c *Controller) reduceLot(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Shares decimal.Decimal `json:"shares"`
	}
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}

	result, err := c.accountService.ReduceLot(r.Context(), accountID, chi.URLParam(r, "code"), req.Shares)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (c *Controller) updateNavs(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	updated, pending, failed, err := c.accountService.UpdateNavs(r.Context(), accountID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"updated": updated,
		"pending": pending,
		"failed":  failed,
	})
}

func (c *Controller) getTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			respondError(w, r, service.ErrValidation)
			return
		}
	}

	transactions, err := c.accountService.GetTransactions(r.Context(), accountID, r.URL.Query().Get("code"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, transactions)
}
