package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/avvvet/healthcard-services/internal/cardsvc/artifact"
	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
	"github.com/avvvet/healthcard-services/internal/cardsvc/service"
	"github.com/avvvet/healthcard-services/internal/cardsvc/store"
	"github.com/avvvet/healthcard-services/internal/cardsvc/web"
	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

const (
	notFoundBody    = "Health card not found"
	multipartMemory = 8 << 20
)

func artifactURL(folder artifact.Folder, name string) string {
	return "/static/" + string(folder) + "/" + name
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.Render(w, name, data); err != nil {
		log.Errorf("Error rendering %s: %s", name, err)
		textResponse(w, http.StatusInternalServerError, "Failed to render page")
	}
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html", nil)
}

func (h *Handler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.opts.MaxUploadBytes {
		textResponse(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			textResponse(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		textResponse(w, http.StatusBadRequest, "Invalid form submission")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form := parseCardForm(r)
	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			textResponse(w, http.StatusBadRequest, "Invalid fields: "+strings.Join(fields, ", "))
			return
		}
		textResponse(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	req := service.IssueRequest{Form: form, BaseURL: h.baseURL(r)}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	formUpload := func(field string) *service.Upload {
		f, hdr, err := r.FormFile(field)
		if err != nil {
			return nil
		}
		opened = append(opened, f)
		if hdr.Filename == "" {
			return nil
		}
		return &service.Upload{Filename: hdr.Filename, Content: f}
	}

	req.Photo = formUpload("photo")
	for i := range req.Documents {
		req.Documents[i] = formUpload(fmt.Sprintf("document%d", i+1))
	}

	card, err := h.cards.IssueCard(r.Context(), req)
	if err != nil {
		log.Errorf("Error [CardService.IssueCard] %s", err)
		textResponse(w, http.StatusInternalServerError, "Failed to generate health card")
		return
	}
	log.Infof("health card %s issued", card.CardID)

	h.render(w, "result.html", web.ResultPage{
		CardID:       card.CardID,
		ViewURL:      service.ViewURL(req.BaseURL, card.CardID),
		CodeImageURL: artifactURL(artifact.FolderCodes, artifact.CodeImageName(card.CardID)),
	})
}

func parseCardForm(r *http.Request) models.CardForm {
	v := r.PostFormValue
	return models.CardForm{
		Name:            v("name"),
		DOB:             v("dob"),
		Gender:          v("gender"),
		Phone:           v("phone"),
		Address:         v("address"),
		BloodGroup:      v("blood_group"),
		Disabilities:    v("disabilities"),
		Allergies:       v("allergies"),
		Conditions:      v("conditions"),
		Vaccinations:    v("vaccinations"),
		IssueDate:       v("issue_date"),
		Doctor:          v("doctor"),
		AccessCode:      v("access_code"),
		EmergencyName1:  v("emergency_name1"),
		EmergencyPhone1: v("emergency_phone1"),
		Relation1:       v("relation1"),
		EmergencyName2:  v("emergency_name2"),
		EmergencyPhone2: v("emergency_phone2"),
		Relation2:       v("relation2"),
	}
}

// loadCard writes the 404 or 500 itself and returns nil in that case.
func (h *Handler) loadCard(w http.ResponseWriter, r *http.Request) *models.Card {
	card, err := h.cards.GetCard(r.Context(), chi.URLParam(r, "card_id"))
	if errors.Is(err, store.ErrCardNotFound) {
		textResponse(w, http.StatusNotFound, notFoundBody)
		return nil
	}
	if err != nil {
		log.Errorf("Error [CardService.GetCard] %s", err)
		textResponse(w, http.StatusInternalServerError, "Failed to load health card")
		return nil
	}
	return card
}

func cardPage(card *models.Card) web.CardPage {
	page := web.CardPage{
		Card:         card,
		CodeImageURL: artifactURL(artifact.FolderCodes, artifact.CodeImageName(card.CardID)),
	}
	if card.Photo != "" {
		page.PhotoURL = artifactURL(artifact.FolderPhotos, card.Photo)
	}
	for i, name := range card.Documents {
		if name == "" {
			continue
		}
		page.Documents = append(page.Documents, web.DocumentLink{
			Slot: i + 1,
			Name: name,
			URL:  artifactURL(artifact.FolderDocuments, name),
		})
	}
	return page
}

func (h *Handler) ViewCardHandler(w http.ResponseWriter, r *http.Request) {
	card := h.loadCard(w, r)
	if card == nil {
		return
	}
	h.render(w, "viewcard.html", cardPage(card))
}

func (h *Handler) DownloadCardHandler(w http.ResponseWriter, r *http.Request) {
	card := h.loadCard(w, r)
	if card == nil {
		return
	}
	h.render(w, "healthcard.html", cardPage(card))
}

func (h *Handler) CardJSONHandler(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.GetCard(r.Context(), chi.URLParam(r, "card_id"))
	if errors.Is(err, store.ErrCardNotFound) {
		h.CreateResponse(w, Response{Message: notFoundBody, Code: http.StatusNotFound, Error: err.Error()})
		return
	}
	if err != nil {
		log.Errorf("Error [CardService.GetCard] %s", err)
		h.CreateResponse(w, Response{Message: "failed to load health card", Code: http.StatusInternalServerError, Error: "internal error"})
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: card})
}

// ArtifactHandler streams a stored photo, document or code image.
func (h *Handler) ArtifactHandler(w http.ResponseWriter, r *http.Request) {
	folder := artifact.Folder(chi.URLParam(r, "folder"))
	name := chi.URLParam(r, "name")

	rc, err := h.files.Open(r.Context(), folder, name)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) || errors.Is(err, artifact.ErrInvalidName) || errors.Is(err, artifact.ErrBadFolder) {
			http.NotFound(w, r)
			return
		}
		log.Errorf("Error opening artifact %s/%s: %s", folder, name, err)
		textResponse(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// only raster images and PDFs are shown inline
	inline := (strings.HasPrefix(ct, "image/") && ct != "image/svg+xml") || ct == "application/pdf"
	if !inline {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}

	if _, err := io.Copy(w, rc); err != nil {
		log.Warnf("artifact %s/%s copy interrupted: %s", folder, name, err)
	}
}
