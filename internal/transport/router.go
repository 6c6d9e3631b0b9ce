package transport

import "net/http"

type Handler interface {
	generate(w http.ResponseWriter, r *http.Request)
	checkStatus(w http.ResponseWriter, r *http.Request)
	webhook(w http.ResponseWriter, r *http.Request)
	history(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/api/generate", r.h.generate)
	mux.HandleFunc("/api/check-status", r.h.checkStatus)
	mux.HandleFunc("/api/webhook", r.h.webhook)
	mux.HandleFunc("/api/history", r.h.history)

	return mux
}
