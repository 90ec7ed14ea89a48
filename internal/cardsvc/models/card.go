package models

import (
	"time"
)

// EmergencyContact is one of the two contact slots printed on a card.
type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

// Card represents one row of the cards table.
type Card struct {
	CardID       string `json:"card_id"` // CARD + 8 uppercase hex chars
	Name         string `json:"name"`
	DOB          string `json:"dob"`
	Gender       string `json:"gender"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	BloodGroup   string `json:"blood_group"`
	Disabilities string `json:"disabilities"`
	Allergies    string `json:"allergies"`
	Conditions   string `json:"conditions"`
	Vaccinations string `json:"vaccinations"`
	IssueDate    string `json:"issue_date"`
	Doctor       string `json:"doctor"`
	AccessCode   string `json:"access_code"`

	EmergencyContacts [2]EmergencyContact `json:"emergency_contacts"`

	Photo     string    `json:"photo"`     // stored filename or ""
	Documents [3]string `json:"documents"` // slot i holds upload document{i+1}
	CreatedAt time.Time `json:"created_at"`
}

// DocumentNames returns the non-empty document filenames in slot order.
func (c *Card) DocumentNames() []string {
	var names []string
	for _, d := range c.Documents {
		if d != "" {
			names = append(names, d)
		}
	}
	return names
}

// CardForm is the typed view of the creation form. Every field is optional.
type CardForm struct {
	Name         string `form:"name" validate:"max=1024"`
	DOB          string `form:"dob" validate:"max=1024"`
	Gender       string `form:"gender" validate:"max=1024"`
	Phone        string `form:"phone" validate:"max=1024"`
	Address      string `form:"address" validate:"max=16384"`
	BloodGroup   string `form:"blood_group" validate:"max=1024"`
	Disabilities string `form:"disabilities" validate:"max=16384"`
	Allergies    string `form:"allergies" validate:"max=16384"`
	Conditions   string `form:"conditions" validate:"max=16384"`
	Vaccinations string `form:"vaccinations" validate:"max=16384"`
	IssueDate    string `form:"issue_date" validate:"max=1024"`
	Doctor       string `form:"doctor" validate:"max=1024"`
	AccessCode   string `form:"access_code" validate:"max=1024"`

	EmergencyName1  string `form:"emergency_name1" validate:"max=1024"`
	EmergencyPhone1 string `form:"emergency_phone1" validate:"max=1024"`
	Relation1       string `form:"relation1" validate:"max=1024"`
	EmergencyName2  string `form:"emergency_name2" validate:"max=1024"`
	EmergencyPhone2 string `form:"emergency_phone2" validate:"max=1024"`
	Relation2       string `form:"relation2" validate:"max=1024"`
}

// ToCard copies the form fields into a new card with the given id.
func (f CardForm) ToCard(cardID string) *Card {
	return &Card{
		CardID:       cardID,
		Name:         f.Name,
		DOB:          f.DOB,
		Gender:       f.Gender,
		Phone:        f.Phone,
		Address:      f.Address,
		BloodGroup:   f.BloodGroup,
		Disabilities: f.Disabilities,
		Allergies:    f.Allergies,
		Conditions:   f.Conditions,
		Vaccinations: f.Vaccinations,
		IssueDate:    f.IssueDate,
		Doctor:       f.Doctor,
		AccessCode:   f.AccessCode,
		EmergencyContacts: [2]EmergencyContact{
			{Name: f.EmergencyName1, Phone: f.EmergencyPhone1, Relation: f.Relation1},
			{Name: f.EmergencyName2, Phone: f.EmergencyPhone2, Relation: f.Relation2},
		},
	}
}
