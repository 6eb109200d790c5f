package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"jobvyne-crawler/internal/adapter"
)

// writeJSON answers 200 with v.
func writeJSON(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, v)
}

// methodMux dispatches on the request method and answers 405 with the
// allowed set for anything else.
func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	}
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// employerFilter resolves ?employer= against the registry. It returns 0 when
// the filter is absent and writes a 404 (ok=false) when the name is unknown.
func employerFilter(w http.ResponseWriter, r *http.Request, reg *adapter.Registry) (id int64, ok bool) {
	name := strings.TrimSpace(r.URL.Query().Get("employer"))
	if name == "" {
		return 0, true
	}
	e, found := reg.Get(name)
	if !found {
		WriteError(w, r, http.StatusNotFound, codeUnknownEmployer, "unknown employer: "+name)
		return 0, false
	}
	return e.Spec.ID, true
}
