package models

import "time"

// Identity is one broker-issued record for a (provider, external user) pair.
// Data holds the raw broker payload as JSON text; it is replaced wholesale on
// every repeated sighting so consumers always read the latest broker response.
type Identity struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Identity  string    `bson:"identity" json:"identity"` // broker identity key, unique
	Provider  string    `bson:"provider" json:"provider"`
	Data      string    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
