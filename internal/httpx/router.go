// Package httpx serves dictionary content to the rendering surface over a
// loopback-only HTTP bridge.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/registry"
	"github.com/sagerenn/lexis/internal/observability"
	"github.com/sagerenn/lexis/internal/service"
)

const contentCacheControl = "public, max-age=3600"

// Installed lists installed dictionaries for /dicts.
type Installed interface {
	List() []registry.Source
}

type Options struct {
	Service   *service.Service
	Installed Installed
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

type Router struct {
	svc       *service.Service
	installed Installed
	log       *observability.Logger
}

type healthResponse struct {
	Status       string    `json:"status"`
	Time         time.Time `json:"time"`
	Dictionaries int       `json:"dictionaries"`
}

type findItem struct {
	URL       string `json:"url"`
	Label     string `json:"label"`
	DictLabel string `json:"dictLabel"`
}

type findResponse struct {
	Items []findItem `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = observability.Nop()
	}
	r := &Router{svc: opts.Service, installed: opts.Installed, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", r.handleHealth)
	mux.HandleFunc("GET /dicts", r.handleDicts)
	mux.HandleFunc("GET /find", r.handleFind)
	mux.HandleFunc("GET /slob/{source}/{key...}", r.handleSlob)
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	h := observability.RequestIDMiddleware(mux)
	h = observability.RecoveryMiddleware(log)(h)
	h = observability.LoggingMiddleware(log, opts.Metrics)(h)
	return h
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Time:         time.Now().UTC(),
		Dictionaries: len(r.svc.Sources()),
	})
}

func (r *Router) handleDicts(w http.ResponseWriter, _ *http.Request) {
	var list []registry.Source
	if r.installed != nil {
		list = r.installed.List()
	}
	if list == nil {
		list = []registry.Source{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleFind answers /find?key=&limit=&rid=. A rid request superseded by a
// newer rid request gets an empty item list.
func (r *Router) handleFind(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	q := req.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing key"})
		return
	}
	defLimit, maxLimit := r.svc.Limits()
	rawLimit := q.Get("limit")
	limit, err := strconv.Atoi(rawLimit)
	switch {
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(rawLimit, "-"):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "limit too large"})
		return
	case err != nil || limit <= 0:
		limit = defLimit
	case limit > maxLimit:
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "limit too large"})
		return
	}
	// The client's rid only opts the request into supersession. The token
	// itself is issued here so the newest rid request always wins.
	var token uint64
	if rid := q.Get("rid"); rid != "" {
		if _, err := strconv.ParseUint(rid, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid rid"})
			return
		}
		token = r.svc.NextToken()
	}

	items := []findItem{}
	res, ok := <-r.svc.SearchAsync(req.Context(), service.Query{
		Text:         key,
		Limit:        limit,
		Token:        token,
		Dictionaries: splitIDs(q.Get("dict")),
	})
	if ok {
		for _, e := range res.Entries {
			items = append(items, findItem{
				URL:       dict.EntryURL(e.DictID, e.Term, e.TermID),
				Label:     e.Term,
				DictLabel: e.DictName,
			})
		}
	}
	writeJSON(w, http.StatusOK, findResponse{Items: items})
}

// handleSlob serves /slob/{source}/{key}?blob={id}. Without a blob id the
// key is resolved by term, which is how relative links and resources in
// articles are followed.
func (r *Router) handleSlob(w http.ResponseWriter, req *http.Request) {
	source := req.PathValue("source")
	key := req.PathValue("key")
	if source == "" || key == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	ref := service.ByTerm(source, key)
	if blob := req.URL.Query().Get("blob"); blob != "" {
		id, err := strconv.Atoi(blob)
		if err != nil || id < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid blob"})
			return
		}
		ref = service.ByID(source, key, id)
	}

	c, err := r.svc.Resolve(req.Context(), ref)
	switch {
	case errors.Is(err, dict.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		r.log.Error("resolve", "source", source, "key", key, "error", err,
			"request_id", observability.RequestIDFrom(req.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	ct := c.ContentType
	if ct == "" {
		ct = http.DetectContentType(c.Content)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Content)))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", contentCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.Content)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
