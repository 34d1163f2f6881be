package buffer

import (
	"encoding/json"
	"errors"
)

// ErrEmptyIdentifier is returned when a user buffer names no identifier.
var ErrEmptyIdentifier = errors.New("user buffer has no identifier")

// userBuffer is the payload a script sends with $send.
type userBuffer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JSONUserLoader decodes a user buffer of the form {"id": "..."}.
// "name" is accepted when "id" is absent.
type JSONUserLoader struct{}

// Load implements ports.BufferLoader.
func (JSONUserLoader) Load(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty buffer")
	}

	var u userBuffer
	if err := json.Unmarshal(data, &u); err != nil {
		return "", err
	}

	id := u.ID
	if id == "" {
		id = u.Name
	}
	if id == "" {
		return "", ErrEmptyIdentifier
	}
	return id, nil
}

// Format implements ports.BufferLoader.
func (JSONUserLoader) Format() string { return "json" }
