package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	// status page
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/door", func(r chi.Router) {
			r.Post("/open", s.handleOpenDoor)
			r.Post("/close", s.handleCloseDoor)
			r.Post("/stop", s.handleStopDoor)
			r.Get("/is-open", s.handleIsOpen)
			r.Get("/is-closed", s.handleIsClosed)
		})

		r.Put("/lights/{channel}", s.handleSwitchLight)
		r.Put("/automatic", s.handleAutomatic)

		r.Get("/state", s.handleState)
		r.Get("/state/wait", s.handleWait)
		r.Get("/next-action", s.handleNextAction)
		r.Get("/history/moves", s.handleMoves)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
