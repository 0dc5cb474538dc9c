package domain

import (
	"encoding/json"
	"fmt"
)

// Farm is a farm summary as listed and selected by the user
type Farm struct {
	ID       ID      `json:"id"`
	Name     string  `json:"name"`
	Location string  `json:"location,omitempty"`
	SizeAcre float64 `json:"size,omitempty"`
	FarmType string  `json:"farmType,omitempty"`
	OwnerID  ID      `json:"ownerId,omitempty"`
}

// Validate checks the fields needed to select a farm
func (f Farm) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("farm has no id")
	}
	return nil
}

// DecodeFarm accepts a bare farm or one wrapped in {"farm": ...} or {"data": ...}
func DecodeFarm(b []byte) (*Farm, error) {
	var env struct {
		Farm *Farm `json:"farm"`
		Data *Farm `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err == nil {
		for _, f := range []*Farm{env.Farm, env.Data} {
			if f != nil {
				return f, f.Validate()
			}
		}
	}

	var f Farm
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode farm: %w", err)
	}
	return &f, f.Validate()
}

// Animal is a livestock record.
// Dates stay strings: the backend mixes date-only and RFC3339 forms.
type Animal struct {
	ID          ID      `json:"id"`
	FarmID      ID      `json:"farmId"`
	TagNumber   string  `json:"tagNumber"`
	Species     string  `json:"species"`
	Breed       string  `json:"breed,omitempty"`
	Gender      string  `json:"gender,omitempty"`
	DateOfBirth string  `json:"dateOfBirth,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// Worker is a farm worker assignment
type Worker struct {
	ID        ID     `json:"id"`
	FarmID    ID     `json:"farmId"`
	UserID    ID     `json:"userId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Position  string `json:"position,omitempty"`
}

// Task is a unit of farm work
type Task struct {
	ID          ID     `json:"id"`
	FarmID      ID     `json:"farmId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  ID     `json:"assignedTo,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
}

// FeedingSchedule describes a recurring feeding
type FeedingSchedule struct {
	ID        ID      `json:"id"`
	FarmID    ID      `json:"farmId"`
	AnimalID  ID      `json:"animalId,omitempty"`
	FeedType  string  `json:"feedType"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit,omitempty"`
	Frequency string  `json:"frequency,omitempty"`
	TimeOfDay string  `json:"time,omitempty"`
}

// HealthRecord is a veterinary observation
type HealthRecord struct {
	ID         ID     `json:"id"`
	AnimalID   ID     `json:"animalId"`
	RecordDate string `json:"recordDate,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Diagnosis  string `json:"diagnosis,omitempty"`
	Notes      string `json:"notes,omitempty"`
	RecordedBy ID     `json:"recordedBy,omitempty"`
}

// Vaccination is a vaccination event
type Vaccination struct {
	ID          ID     `json:"id"`
	AnimalID    ID     `json:"animalId"`
	VaccineName string `json:"vaccineName"`
	DateGiven   string `json:"dateGiven,omitempty"`
	NextDueDate string `json:"nextDueDate,omitempty"`
	AdminBy     ID     `json:"administeredBy,omitempty"`
}

// Treatment is a course of treatment
type Treatment struct {
	ID         ID     `json:"id"`
	AnimalID   ID     `json:"animalId"`
	Medication string `json:"medication"`
	Dosage     string `json:"dosage,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// LoanApplication is a farmer's loan request. Its business rules live on
// the server; the client only carries the record.
type LoanApplication struct {
	ID        ID      `json:"id"`
	FarmID    ID      `json:"farmId"`
	Amount    float64 `json:"amount"`
	Purpose   string  `json:"purpose,omitempty"`
	TermMonth int     `json:"termMonths,omitempty"`
	Status    string  `json:"status,omitempty"`
	OfficerID ID      `json:"loanOfficerId,omitempty"`
}

// Notification is an in-app notification
type Notification struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// UnreadCount is returned by the unread-count endpoint
type UnreadCount struct {
	Count int `json:"count"`
}

// DecodeList accepts either a bare JSON array or an envelope keyed by one
// of the usual collection names ("data", "items", or the resource name).
func DecodeList[T any](b []byte, keys ...string) ([]T, error) {
	var items []T
	if err := json.Unmarshal(b, &items); err == nil {
		return items, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	for _, k := range append([]string{"data", "items"}, keys...) {
		raw, ok := env[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode list field %q: %w", k, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("decode list: no array found")
}
