// Package domain defines the persistent entities, value types, and patch
// primitives shared by the socialcore store, coordinator, and adapters.
package domain

import "time"

// EntityType identifies the kind of record held in one of the four collections.
type EntityType string

// Supported entity type identifiers used in Change records, journal rows, and errors.
const (
	// EntityUser identifies a user record.
	EntityUser EntityType = "user"
	// EntityProfile identifies a profile record owned by a user.
	EntityProfile EntityType = "profile"
	// EntityPost identifies a post authored by a user.
	EntityPost EntityType = "post"
	// EntityMemberType identifies a membership plan.
	EntityMemberType EntityType = "member_type"
)

// Seeded membership plan identifiers.
const (
	MemberTypeBasic    = "basic"
	MemberTypeBusiness = "business"
)

// User is a member of the network. SubscribedToUserIDs lists the users this
// user follows; it never contains duplicates.
type User struct {
	ID                  string   `json:"id" yaml:"id"`
	Name                string   `json:"name" yaml:"name"`
	Surname             string   `json:"surname" yaml:"surname"`
	Balance             float64  `json:"balance" yaml:"balance"`
	SubscribedToUserIDs []string `json:"subscribedToUserIds" yaml:"subscribedToUserIds"`
}

// Profile carries the personal details of a user. At most one profile exists per user.
type Profile struct {
	ID           string `json:"id" yaml:"id"`
	Avatar       string `json:"avatar" yaml:"avatar"`
	Sex          string `json:"sex" yaml:"sex"`
	Birthday     int64  `json:"birthday" yaml:"birthday"`
	Country      string `json:"country" yaml:"country"`
	Street       string `json:"street" yaml:"street"`
	City         string `json:"city" yaml:"city"`
	UserID       string `json:"userId" yaml:"userId"`
	MemberTypeID string `json:"memberTypeId" yaml:"memberTypeId"`
}

// Post is a piece of content authored by a user.
type Post struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
	UserID  string `json:"userId" yaml:"userId"`
}

// MemberType describes a membership plan referenced by profiles.
type MemberType struct {
	ID              string  `json:"id" yaml:"id"`
	Discount        float64 `json:"discount" yaml:"discount"`
	MonthPostsLimit int     `json:"monthPostsLimit" yaml:"monthPostsLimit"`
}

// DefaultMemberTypes returns the plans every fresh store is seeded with.
func DefaultMemberTypes() []MemberType {
	return []MemberType{
		{ID: MemberTypeBasic, Discount: 0, MonthPostsLimit: 20},
		{ID: MemberTypeBusiness, Discount: 5, MonthPostsLimit: 100},
	}
}

// Change describes a single mutation applied to a collection. Before is nil for
// creations and After is nil for deletions.
type Change struct {
	Entity     EntityType `json:"entity"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Before     any        `json:"before,omitempty"`
	After      any        `json:"after,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// Action indicates the type of modification performed.
type Action string

const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was deleted.
	ActionDelete Action = "delete"
)
