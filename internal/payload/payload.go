package payload

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned when a broker payload is missing required fields.
var ErrInvalid = errors.New("invalid broker payload")

// Name holds the optional nested name block of a broker payload.
// Some providers send it as an object, others as a bare string; a bare
// string is treated as the full name.
type Name struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
}

func (n *Name) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n.FullName = s
		return nil
	}
	type alias Name
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*n = Name(a)
	return nil
}

// Payload is the parsed broker response. Only Identity and Provider are
// required; every other field is provider-dependent and may be absent.
type Payload struct {
	Identity string `json:"identity"`
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Name     *Name  `json:"name"`
	FullName string `json:"full_name"`
	Photo    string `json:"photo"`
}

// Parse decodes a raw broker payload and validates required fields.
func Parse(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the fields every payload must carry.
func (p *Payload) Validate() error {
	if p.Identity == "" {
		return fmt.Errorf("%w: missing identity", ErrInvalid)
	}
	if p.Provider == "" {
		return fmt.Errorf("%w: missing provider", ErrInvalid)
	}
	return nil
}
