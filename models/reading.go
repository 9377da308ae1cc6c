package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
)

// Arcana of a card
type Arcana string

const (
	ArcanaMajor Arcana = "major"
	ArcanaMinor Arcana = "minor"
)

// Position of a card within a three-card spread
type Position string

const (
	PositionPast    Position = "past"
	PositionPresent Position = "present"
	PositionFuture  Position = "future"
)

// SpreadPositions are the spread positions in draw order
var SpreadPositions = []Position{PositionPast, PositionPresent, PositionFuture}

// Label returns the position name shown to the reader
func (p Position) Label() string {
	switch p {
	case PositionPast:
		return "Passado"
	case PositionPresent:
		return "Presente"
	case PositionFuture:
		return "Futuro"
	default:
		return string(p)
	}
}

// TarotCard is an immutable deck entry
type TarotCard struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Arcana    Arcana   `json:"arcana"`
	Suit      string   `json:"suit,omitempty"`
	Keywords  []string `json:"keywords"`
	ImageCode string   `json:"image_code"`
}

// DrawnCard is a card placed in the spread
type DrawnCard struct {
	TarotCard
	IsReversed bool     `json:"is_reversed"`
	Position   Position `json:"position"`
}

// Orientation returns the orientation label used in prompts and share texts
func (c DrawnCard) Orientation() string {
	if c.IsReversed {
		return "Invertida"
	}
	return "Normal"
}

// DrawnCards is a spread stored as a JSON column
type DrawnCards []DrawnCard

// Value implements driver.Valuer for JSONB
func (c DrawnCards) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB; a corrupt spread scans as empty
func (c *DrawnCards) Scan(value interface{}) error {
	if value == nil {
		*c = DrawnCards{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	if err := json.Unmarshal(bytes, c); err != nil {
		*c = DrawnCards{}
	}
	return nil
}

// ReadingResult is one completed reading in the history log
type ReadingResult struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	InstallationID uuid.UUID  `json:"-" gorm:"type:text;index:idx_readings_installation"`
	Timestamp      int64      `json:"timestamp"`
	Question       string     `json:"question"`
	Cards          DrawnCards `json:"cards" gorm:"type:text"`
	Interpretation string     `json:"interpretation" gorm:"type:text"`
}

// TableName pins the gorm table name
func (ReadingResult) TableName() string {
	return "readings"
}
