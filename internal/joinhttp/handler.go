package joinhttp

import (
	"net/http"
	"strings"

	"github.com/geoserve/joins/internal/joinerrors"
	"github.com/geoserve/joins/internal/joinmgr"
	"github.com/geoserve/joins/internal/provider"
)

// ProviderLookup resolves a collection id to the Provider the Join
// Manager should validate against; it stands in for whatever registry
// the host OGC API server already keeps (spec §6.1).
type ProviderLookup func(collectionID string) (provider.Provider, bool)

// Server is the thin HTTP surface over a *joinmgr.Manager. A nil
// Manager (the disabled sentinel) makes every route respond 404,
// mirroring "absence of the joins key is not an error" (spec §6).
type Server struct {
	Manager *joinmgr.Manager
	Lookup  ProviderLookup
}

// Handler dispatches four joins routes (POST .../join, GET .../joins,
// GET and DELETE .../joins/{id}); no route calls PerformJoin. Register it the way
// cmd/gcsemulator registers gcsemu.GcsEmu.Handler: mux.HandleFunc("/",
// server.Handler).
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	if s.Manager == nil {
		http.NotFound(w, r)
		return
	}

	const prefix = "/collections/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[1] == "join" && r.Method == http.MethodPost:
		s.handleProcessCSV(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "joins" && r.Method == http.MethodGet:
		s.handleList(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "joins" && r.Method == http.MethodGet:
		s.handleRead(w, r, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "joins" && r.Method == http.MethodDelete:
		s.handleRemove(w, r, parts[0], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProcessCSV(w http.ResponseWriter, r *http.Request, collectionID string) {
	p, ok := s.Lookup(collectionID)
	if !ok {
		writeError(w, joinerrors.New(joinerrors.KindNotFound, "unknown collection %q", collectionID))
		return
	}

	form, file, err := readJoinUpload(r)
	if err != nil {
		writeError(w, joinerrors.New(joinerrors.KindCSVShape, "%s", err))
		return
	}

	table, err := s.Manager.ProcessCSV(r.Context(), collectionID, p, form, file)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonRespond(w, table)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, collectionID string) {
	refs, err := s.Manager.List(r.Context(), collectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonRespond(w, refs)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, collectionID, id string) {
	table, err := s.Manager.Read(r.Context(), collectionID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonRespond(w, table)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request, collectionID, id string) {
	ok, err := s.Manager.Remove(r.Context(), collectionID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonRespond(w, struct {
		Removed bool `json:"removed"`
	}{Removed: ok})
}
