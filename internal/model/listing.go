package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Listing represents a rental property listing
type Listing struct {
	ID              string          `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Price           int             `json:"price" db:"price"`
	Beds            float64         `json:"beds" db:"beds"`
	Baths           float64         `json:"baths" db:"baths"`
	City            string          `json:"city" db:"city"`
	Neighborhood    string          `json:"neighborhood" db:"neighborhood"`
	Description     string          `json:"description" db:"description"`
	Amenities       JSONArray       `json:"amenities,omitempty" db:"amenities"`
	PetsAllowed     bool            `json:"pets_allowed" db:"pets_allowed"`
	Parking         bool            `json:"parking" db:"parking"`
	Laundry         bool            `json:"laundry" db:"laundry"`
	AirConditioning bool            `json:"air_conditioning" db:"air_conditioning"`
	VibeScore       float64         `json:"vibe_score" db:"vibe_score"`
	ExternalURL     string          `json:"external_url" db:"external_url"`
	Source          string          `json:"source" db:"source"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	Embedding       pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// SearchResult is a Listing projection returned by the search engine.
// The embedding vector is never serialized; Distance is set only when the
// query included a similarity component (lower = more similar).
type SearchResult struct {
	Listing
	Distance *float64 `json:"distance,omitempty" db:"distance"`
}

// JSONArray represents a JSON array column
type JSONArray []string

// Value implements driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), j)
	}
	return json.Unmarshal(bytes, j)
}
