package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avvvet/healthcard-services/internal/cardsvc/artifact"
	"github.com/avvvet/healthcard-services/internal/cardsvc/ident"
	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
	"github.com/avvvet/healthcard-services/internal/cardsvc/store"
	"github.com/avvvet/healthcard-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

const DefaultMaxIDAttempts = 5

var ErrIDAllocationExhausted = errors.New("could not allocate a unique card id")

// CardRepository is satisfied by *store.CardStore.
type CardRepository interface {
	Insert(ctx context.Context, card *models.Card) error
	GetByCardID(ctx context.Context, cardID string) (*models.Card, error)
}

type CodeRenderer interface {
	Render(payload string) ([]byte, error)
}

type EventPublisher interface {
	PublishCardIssued(ev comm.CardIssued) error
}

// Upload is one file part of the creation form. Content is rewound before
// every write so a retried attempt stores the same bytes.
type Upload struct {
	Filename string
	Content  io.ReadSeeker
}

type IssueRequest struct {
	Form      models.CardForm
	Photo     *Upload
	Documents [3]*Upload // document1..document3
	BaseURL   string     // origin the code image points back to
}

type CardService struct {
	store  CardRepository
	files  artifact.Storage
	codes  CodeRenderer
	events EventPublisher

	newID         ident.Generator
	maxIDAttempts int
}

// NewCardService wires the creation pipeline. events may be nil.
func NewCardService(store CardRepository, files artifact.Storage, codes CodeRenderer, events EventPublisher) *CardService {
	return &CardService{
		store:         store,
		files:         files,
		codes:         codes,
		events:        events,
		newID:         ident.New,
		maxIDAttempts: DefaultMaxIDAttempts,
	}
}

// ViewURL is the absolute detail page URL encoded into a card's code image.
func ViewURL(baseURL, cardID string) string {
	return strings.TrimRight(baseURL, "/") + "/view/" + cardID
}

type savedArtifact struct {
	folder artifact.Folder
	name   string
}

// IssueCard stores the uploads, inserts the record and renders the code
// image. A duplicate id discards that attempt's files and retries with a
// fresh id, up to maxIDAttempts.
func (s *CardService) IssueCard(ctx context.Context, req IssueRequest) (*models.Card, error) {
	for attempt := 1; attempt <= s.maxIDAttempts; attempt++ {
		card := req.Form.ToCard(s.newID())

		saved, err := s.saveUploads(ctx, card, req)
		if err != nil {
			s.discard(ctx, saved)
			return nil, err
		}

		err = s.store.Insert(ctx, card)
		if err == nil {
			// the row is committed; a cancelled request must not leave it without its code image
			if err := s.saveCodeImage(context.WithoutCancel(ctx), card.CardID, req.BaseURL); err != nil {
				return nil, err
			}
			s.publishIssued(card, req.BaseURL)
			return card, nil
		}

		s.discard(ctx, saved)
		if !errors.Is(err, store.ErrDuplicateCardID) {
			return nil, err
		}
		log.Warnf("card id %s already issued, retrying (attempt %d/%d)", card.CardID, attempt, s.maxIDAttempts)
	}

	return nil, ErrIDAllocationExhausted
}

func (s *CardService) saveUploads(ctx context.Context, card *models.Card, req IssueRequest) ([]savedArtifact, error) {
	var saved []savedArtifact

	if req.Photo != nil {
		name := artifact.PhotoName(card.CardID, req.Photo.Filename)
		if err := s.save(ctx, artifact.FolderPhotos, name, req.Photo.Content); err != nil {
			return saved, err
		}
		saved = append(saved, savedArtifact{artifact.FolderPhotos, name})
		card.Photo = name
	}

	for i, doc := range req.Documents {
		if doc == nil {
			continue
		}
		name := artifact.DocumentName(card.CardID, i+1, doc.Filename)
		if err := s.save(ctx, artifact.FolderDocuments, name, doc.Content); err != nil {
			return saved, err
		}
		saved = append(saved, savedArtifact{artifact.FolderDocuments, name})
		card.Documents[i] = name
	}

	return saved, nil
}

func (s *CardService) save(ctx context.Context, folder artifact.Folder, name string, content io.ReadSeeker) error {
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload %s: %w", name, err)
	}
	if err := s.files.Save(ctx, folder, name, content); err != nil {
		return fmt.Errorf("save artifact %s/%s: %w", folder, name, err)
	}
	return nil
}

func (s *CardService) discard(ctx context.Context, saved []savedArtifact) {
	for _, a := range saved {
		if err := s.files.Remove(ctx, a.folder, a.name); err != nil {
			log.Errorf("Error [CardService.discard] %s/%s: %s", a.folder, a.name, err)
		}
	}
}

func (s *CardService) saveCodeImage(ctx context.Context, cardID, baseURL string) error {
	png, err := s.codes.Render(ViewURL(baseURL, cardID))
	if err != nil {
		return err
	}
	name := artifact.CodeImageName(cardID)
	if err := s.files.Save(ctx, artifact.FolderCodes, name, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("save code image %s: %w", name, err)
	}
	return nil
}

func (s *CardService) publishIssued(card *models.Card, baseURL string) {
	if s.events == nil {
		return
	}
	ev := comm.CardIssued{
		CardID:   card.CardID,
		ViewURL:  ViewURL(baseURL, card.CardID),
		Photo:    card.Photo != "",
		DocCount: len(card.DocumentNames()),
		IssuedAt: time.Now().UTC(),
	}
	if err := s.events.PublishCardIssued(ev); err != nil {
		log.Errorf("Error [CardService.publishIssued] %s: %s", card.CardID, err)
	}
}

// GetCard returns store.ErrCardNotFound for unknown ids. Malformed ids
// never reach the store.
func (s *CardService) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	if !ident.Valid(cardID) {
		return nil, store.ErrCardNotFound
	}
	return s.store.GetByCardID(ctx, cardID)
}
