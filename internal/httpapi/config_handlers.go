package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"reflect"
	"sync/atomic"

	"jobvyne-crawler/internal/config"
)

type ConfigHandler struct {
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

// configSaved answers a successful PUT. RestartRequired names the sections
// that changed but only take effect when the process starts again, since the
// employer registry and crawl pools are built once.
type configSaved struct {
	Config          config.Config `json:"config"`
	Warnings        []string      `json:"warnings,omitempty"`
	RestartRequired []string      `json:"restart_required,omitempty"`
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.CfgVal.Load().(config.Config))
}

func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming config.Config
	if err := dec.Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, codeInvalidJSON, "invalid JSON: "+err.Error())
		return
	}
	if dec.More() {
		WriteError(w, r, http.StatusBadRequest, codeInvalidJSON, "invalid JSON: trailing data")
		return
	}

	normalized, vr := validateWithEmployers(incoming)
	if !vr.OK() {
		// every problem at once
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, codeInvalidConfig, err.Error())
		return
	}

	saved, err := h.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	prev := h.CfgVal.Swap(saved).(config.Config)
	writeJSON(w, configSaved{
		Config:          saved,
		Warnings:        vr.Warnings,
		RestartRequired: restartSections(prev, saved),
	})
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.UserCfgPath)
	writeJSON(w, map[string]any{"path": abs})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := validateWithEmployers(h.CfgVal.Load().(config.Config))
	WriteJSON(w, http.StatusOK, vr)
}

// validateWithEmployers adds the employer registry file to the config
// checks: a config pointing at an unreadable registry would start a server
// that crawls nothing.
func validateWithEmployers(cfg config.Config) (config.Config, config.Validation) {
	normalized, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return normalized, vr
	}
	specs, err := config.LoadEmployers(normalized.EmployersPath())
	switch {
	case err != nil:
		vr.Errors = append(vr.Errors, "employers: "+err.Error())
	case len(specs) == 0:
		vr.Warnings = append(vr.Warnings, "employers: no employers registered at "+normalized.EmployersPath())
	}
	return normalized, vr
}

func restartSections(prev, next config.Config) []string {
	var out []string
	if prev.App != next.App {
		out = append(out, "app")
	}
	if !reflect.DeepEqual(prev.Crawl, next.Crawl) {
		out = append(out, "crawl")
	}
	if prev.Browser != next.Browser {
		out = append(out, "browser")
	}
	if prev.Locations != next.Locations {
		out = append(out, "locations")
	}
	if prev.Employers != next.Employers {
		out = append(out, "employers")
	}
	return out
}
