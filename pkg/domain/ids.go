package domain

import "github.com/google/uuid"

// IDGenerator produces fresh, never reused entity identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random (version 4) UUIDs in canonical form.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

// NewID implements IDGenerator.
func (f IDGeneratorFunc) NewID() string { return f() }

// canonicalIDLen is the length of xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
const canonicalIDLen = 36

// ValidID reports whether id is a UUID in canonical textual form. The braced,
// urn-prefixed and undashed spellings uuid.Parse tolerates are rejected.
func ValidID(id string) bool {
	if len(id) != canonicalIDLen {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// CheckID returns an InvalidRequestError when id is not a canonical UUID.
func CheckID(entity EntityType, id string) error {
	if !ValidID(id) {
		return Invalidf("%s id %q is not a valid uuid", entity, id)
	}
	return nil
}
