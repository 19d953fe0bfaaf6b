package model

import "strings"

// Credentials is the identifier/secret pair issued by the school for the
// timetable service. A pair is immutable for the lifetime of a session.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Identifier) != "" && c.Secret != ""
}
