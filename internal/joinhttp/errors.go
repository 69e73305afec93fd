// Package joinhttp is the thin reference HTTP surface that exercises
// the Join Manager end to end, the way cmd/gcsemulator's Handler
// exercises gcsemu.GcsEmu. It is deliberately not a full OGC API
// implementation: routing, content negotiation and OpenAPI assembly
// are the host server's job (spec §1's "out of scope" list); this
// package only covers four joins-specific routes: create, list, read
// and remove. Feature reads with PerformJoin are not exposed over HTTP.
package joinhttp

import (
	"encoding/json"
	"net/http"

	"github.com/geoserve/joins/internal/joinerrors"
)

// problemResponse is a minimal stand-in for the OGC exception envelope
// the real HTTP layer would produce.
type problemResponse struct {
	Code    string `json:"code"`
	Message string `json:"description"`
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	kind := "IOError"

	var je *joinerrors.Error
	if e, ok := err.(*joinerrors.Error); ok {
		je = e
	}
	if je != nil {
		code = je.HTTPStatus()
		kind = string(je.Kind)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(problemResponse{Code: kind, Message: err.Error()})
}

func jsonRespond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
