package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Get("/", h.IndexHandler)
	r.Post("/generate", h.GenerateHandler)
	r.Get("/view/{card_id}", h.ViewCardHandler)
	r.Get("/download_card/{card_id}", h.DownloadCardHandler)
	r.Get("/static/{folder}/{name}", h.ArtifactHandler)

	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/cards/{card_id}", h.CardJSONHandler)

		// operator routes
		r.Group(func(r chi.Router) {
			if h.tokenAuth != nil {
				r.Use(jwtauth.Verifier(h.tokenAuth))
				r.Use(jwtauth.Authenticator)
			}

			r.Get("/health", h.HealthHandler)

		})
	})
}

// InitAuth protects the operator routes with HS256 tokens. Without a secret
// they stay open.
func (h *Handler) InitAuth(secret string) {
	if secret == "" {
		log.Warn("JWT_SECRET_KEY not set, operator routes are unauthenticated")
		return
	}
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	if log.IsLevelEnabled(log.DebugLevel) {
		_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
			"service_id": h.opts.Instance,
			"exp":        time.Now().Add(24 * time.Hour).Unix(),
		})
		log.Debugf("DEBUG: operator JWT for testing: %s", tokenString)
	}
}
