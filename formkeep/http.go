package formkeep

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formkeep/formkeep/internal/session"
	"github.com/hazyhaar/formkeep/kit"
	"github.com/hazyhaar/formkeep/shield"
)

// Handler returns the HTTP API:
//
//	GET  /health
//	GET  /api/pages
//	GET  /api/pages/{id}/live
//	GET  /api/pages/{id}/saved
//	POST /api/pages/{id}/save
//	POST /api/pages/{id}/restore
//	POST /api/pages/{id}/reset    {"confirm":true,"confirm_again":true}, or no body to ask the page
//	GET  /api/audit?page=&op=&limit=
//	GET  /api/events              WebSocket, when a websocket sink is configured
func (k *Keeper) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(k.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/pages", k.handlePages)
		r.Get("/audit", k.handleAudit)
		r.Route("/pages/{id}", func(r chi.Router) {
			r.Use(pageContext)
			r.Get("/live", k.handleLive)
			r.Get("/saved", k.handleSaved)
			r.Post("/save", k.handleSave)
			r.Post("/restore", k.handleRestore)
			r.Post("/reset", k.handleReset)
		})
		if k.hub != nil {
			r.Handle("/events", k.hub)
		}
	})
	return r
}

func pageContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithPageID(r.Context(), chi.URLParam(r, "id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (k *Keeper) handlePages(w http.ResponseWriter, r *http.Request) {
	pages, err := k.Pages(r.Context())
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (k *Keeper) handleLive(w http.ResponseWriter, r *http.Request) {
	snap, err := k.Live(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (k *Keeper) handleSaved(w http.ResponseWriter, r *http.Request) {
	snap, err := k.Saved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (k *Keeper) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := AuditFilter{PageID: q.Get("page"), Operation: q.Get("op")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		f.Limit = n
	}
	entries, err := k.Audit(r.Context(), f)
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (k *Keeper) handleSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var st Status
	err := k.audited(r.Context(), "save", pageRequest{PageID: id}, func() (err error) {
		st, err = k.Save(r.Context(), id)
		return err
	})
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (k *Keeper) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var ok bool
	err := k.audited(r.Context(), "restore", pageRequest{PageID: id}, func() (err error) {
		ok, err = k.Restore(r.Context(), id)
		return err
	})
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{Applied: ok})
}

func (k *Keeper) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
		return
	}
	req.PageID = chi.URLParam(r, "id")
	err := k.audited(r.Context(), "reset", req, func() error {
		return k.remoteReset(r.Context(), req.PageID, req.Confirm, req.ConfirmAgain)
	})
	if err != nil {
		k.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Reset: true, Notice: session.ResetDoneNotice})
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps sentinel errors to status codes.
func (k *Keeper) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownPage), errors.Is(err, ErrNoSnapshot):
		status = http.StatusNotFound
	case errors.Is(err, ErrDeclined):
		status = http.StatusPreconditionFailed
	case errors.Is(err, ErrNoPrompter):
		status = http.StatusBadRequest
	case errors.Is(err, ErrRestoring):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("formkeep: request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
