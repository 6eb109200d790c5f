package httpapi

import (
	"encoding/json"
	"net/http"
)

type SecretsHandler struct {
	SetToken func(key, token string) error
}

type setAPITokenReq struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// SetAPIToken stores the token an api-family employer names in token_key.
func (h SecretsHandler) SetAPIToken(w http.ResponseWriter, r *http.Request) {
	var req setAPITokenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, codeInvalidJSON, "invalid json")
		return
	}
	if h.SetToken == nil {
		WriteError(w, r, http.StatusNotImplemented, "no_keyring", "token storage is not configured")
		return
	}

	if err := h.SetToken(req.Key, req.Token); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store token: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
