package models

import "time"

// UserMap links an Identity to a local user account. At most one UserMap
// exists per identity key; one user may own several maps (one per provider).
type UserMap struct {
	ID        int64     `bson:"_id" json:"id"`
	Identity  string    `bson:"identity" json:"identity"` // unique identity key
	UserID    int64     `bson:"userId" json:"userId"`
	Verified  bool      `bson:"verified" json:"verified"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
