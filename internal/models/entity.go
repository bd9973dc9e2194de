// Package models defines the data model shared by the stockflow engines.
package models

// EntityKind discriminates the entity union.
type EntityKind string

const (
	EntityEquity EntityKind = "equity"
	EntityTopic  EntityKind = "topic"
	EntityPerson EntityKind = "person"
)

// Entity is the primary organizing key: an equity ticker, a macro topic, or a
// named person. StoragePath is a slash-joined logical key under the news
// prefixes (e.g. "macro/Fed_Funds_Rate").
type Entity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	StoragePath string     `json:"storage_path"`
	Group       string     `json:"group"`

	// Engine participation flags.
	Financials bool `json:"financials"`
	Trading    bool `json:"trading"`
	News       bool `json:"news"`
}

// IsEquity reports whether the entity is a stock ticker.
func (e Entity) IsEquity() bool { return e.Kind == EntityEquity }
