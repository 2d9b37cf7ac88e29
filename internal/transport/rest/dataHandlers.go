package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
)

func modulesFromQuery(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("modules"))
	if raw == "" {
		return nil
	}
	modules := strings.Split(raw, ",")
	for i := range modules {
		modules[i] = strings.TrimSpace(modules[i])
	}
	return modules
}

func (c *Controller) exportData(w http.ResponseWriter, r *http.Request) {
	modules := modulesFromQuery(r)

	if r.URL.Query().Get("format") == "xlsx" {
		fileBytes, ext, err := c.dataService.ExportXLSX(r.Context(), modules)
		if err != nil {
			respondError(w, r, err)
			return
		}

		filename := fmt.Sprintf("fundval_export_%s%s", time.Now().Format("20060102_150405"), ext)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		_, _ = w.Write(fileBytes)
		return
	}

	export, err := c.dataService.Export(r.Context(), modules)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, export)
}

func (c *Controller) importData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string       `json:"mode"`
		Data model.Export `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, service.ErrValidation)
		return
	}
	if req.Mode == "" {
		req.Mode = model.ImportModeMerge
	}

	if err := c.dataService.Import(r.Context(), req.Data, req.Mode); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
