package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCardNotFound    = errors.New("card not found")
	ErrDuplicateCardID = errors.New("card id already issued")
)

const uniqueViolation = "23505"

type CardStore struct {
	db *pgxpool.Pool
}

func NewCardStore(db *pgxpool.Pool) *CardStore {
	return &CardStore{db: db}
}

// Insert writes one new row. A card_id that already exists yields
// ErrDuplicateCardID; nothing is ever overwritten.
func (s *CardStore) Insert(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO cards (
			card_id, name, dob, gender, phone, address, blood_group,
			disabilities, allergies, conditions, vaccinations,
			issue_date, doctor, access_code,
			emergency_name1, emergency_phone1, relation1,
			emergency_name2, emergency_phone2, relation2,
			photo, doc1, doc2, doc3
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING created_at
	`

	ec := card.EmergencyContacts
	err := s.db.QueryRow(ctx, query,
		card.CardID, card.Name, card.DOB, card.Gender, card.Phone, card.Address, card.BloodGroup,
		card.Disabilities, card.Allergies, card.Conditions, card.Vaccinations,
		card.IssueDate, card.Doctor, card.AccessCode,
		ec[0].Name, ec[0].Phone, ec[0].Relation,
		ec[1].Name, ec[1].Phone, ec[1].Relation,
		card.Photo, card.Documents[0], card.Documents[1], card.Documents[2],
	).Scan(&card.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateCardID, card.CardID)
		}
		return fmt.Errorf("failed to insert card %s: %w", card.CardID, err)
	}

	return nil
}

func (s *CardStore) GetByCardID(ctx context.Context, cardID string) (*models.Card, error) {
	query := `
		SELECT card_id, name, dob, gender, phone, address, blood_group,
			disabilities, allergies, conditions, vaccinations,
			issue_date, doctor, access_code,
			emergency_name1, emergency_phone1, relation1,
			emergency_name2, emergency_phone2, relation2,
			photo, doc1, doc2, doc3, created_at
		FROM cards
		WHERE card_id = $1
		LIMIT 1
	`

	var c models.Card
	ec := &c.EmergencyContacts
	err := s.db.QueryRow(ctx, query, cardID).Scan(
		&c.CardID, &c.Name, &c.DOB, &c.Gender, &c.Phone, &c.Address, &c.BloodGroup,
		&c.Disabilities, &c.Allergies, &c.Conditions, &c.Vaccinations,
		&c.IssueDate, &c.Doctor, &c.AccessCode,
		&ec[0].Name, &ec[0].Phone, &ec[0].Relation,
		&ec[1].Name, &ec[1].Phone, &ec[1].Relation,
		&c.Photo, &c.Documents[0], &c.Documents[1], &c.Documents[2], &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card by id: %w", err)
	}

	return &c, nil
}
