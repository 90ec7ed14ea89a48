package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/avvvet/healthcard-services/internal/cardsvc/artifact"
	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
	"github.com/avvvet/healthcard-services/internal/cardsvc/service"
	"github.com/avvvet/healthcard-services/internal/cardsvc/web"
	"github.com/go-chi/jwtauth"
	"github.com/go-playground/validator/v10"
)

const defaultMaxUpload = 16 << 20

// CardService is satisfied by *service.CardService.
type CardService interface {
	IssueCard(ctx context.Context, req service.IssueRequest) (*models.Card, error)
	GetCard(ctx context.Context, cardID string) (*models.Card, error)
}

type Options struct {
	PublicBaseURL  string // overrides the request origin in code images
	MaxUploadBytes int64
	Instance       string
}

type Handler struct {
	cards     CardService
	files     artifact.Storage
	pages     *web.Renderer
	validate  *validator.Validate
	tokenAuth *jwtauth.JWTAuth
	opts      Options
}

func NewHandler(cards CardService, files artifact.Storage, pages *web.Renderer, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}

	v := validator.New()
	// report form field names instead of struct field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})

	return &Handler{
		cards:    cards,
		files:    files,
		pages:    pages,
		validate: v,
		opts:     opts,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "card service is running",
		Code:    http.StatusOK,
		Data:    map[string]string{"instance": h.opts.Instance},
	})
}

func textResponse(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body))
}

// baseURL is the origin written into code images.
func (h *Handler) baseURL(r *http.Request) string {
	if h.opts.PublicBaseURL != "" {
		return h.opts.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	// anything but http/https from a proxy header is ignored
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		switch fwd := strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0])); fwd {
		case "http", "https":
			scheme = fwd
		}
	}
	return scheme + "://" + r.Host
}
