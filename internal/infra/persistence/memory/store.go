// Package memory provides the in-process collections backing socialcore. State
// lives only for the lifetime of the process.
package memory

import (
	"fmt"

	"socialcore/pkg/domain"
)

// Store owns the four entity collections. It is constructed once and injected
// into the coordinator and service; nothing reaches it through globals.
type Store struct {
	Users       *Collection[domain.User]
	Profiles    *Collection[domain.Profile]
	Posts       *Collection[domain.Post]
	MemberTypes *Collection[domain.MemberType]
}

// Snapshot captures a point-in-time copy of every collection in insertion order.
type Snapshot struct {
	Users       []domain.User       `json:"users" yaml:"users"`
	Profiles    []domain.Profile    `json:"profiles" yaml:"profiles"`
	Posts       []domain.Post       `json:"posts" yaml:"posts"`
	MemberTypes []domain.MemberType `json:"memberTypes" yaml:"memberTypes"`
}

// NewStore constructs a store seeded with domain.DefaultMemberTypes. A nil
// generator falls back to random UUIDs.
func NewStore(ids domain.IDGenerator) *Store {
	if ids == nil {
		ids = domain.UUIDGenerator{}
	}
	s := &Store{
		Users:       NewCollection(userSchema, ids),
		Profiles:    NewCollection(profileSchema, ids),
		Posts:       NewCollection(postSchema, ids),
		MemberTypes: NewCollection(memberTypeSchema, ids),
	}
	for _, mt := range domain.DefaultMemberTypes() {
		_, err := s.MemberTypes.Insert(mt)
		mustApply("seed member type", err)
	}
	return s
}

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

// ExportState returns a deep copy of the current state. Each collection is read
// under its own lock, so the snapshot is consistent per collection only.
func (s *Store) ExportState() Snapshot {
	return Snapshot{
		Users:       s.Users.FindMany(nil),
		Profiles:    s.Profiles.FindMany(nil),
		Posts:       s.Posts.FindMany(nil),
		MemberTypes: s.MemberTypes.FindMany(nil),
	}
}

var userSchema = Schema[domain.User]{
	Entity: domain.EntityUser,
	ID:     func(u domain.User) string { return u.ID },
	SetID:  func(u *domain.User, id string) { u.ID = id },
	Clone:  cloneUser,
	Field: func(u domain.User, field string) (any, bool) {
		switch field {
		case "id":
			return u.ID, true
		case "name":
			return u.Name, true
		case "surname":
			return u.Surname, true
		case "balance":
			return u.Balance, true
		}
		return nil, false
	},
}

var profileSchema = Schema[domain.Profile]{
	Entity: domain.EntityProfile,
	ID:     func(p domain.Profile) string { return p.ID },
	SetID:  func(p *domain.Profile, id string) { p.ID = id },
	Field: func(p domain.Profile, field string) (any, bool) {
		switch field {
		case "id":
			return p.ID, true
		case "avatar":
			return p.Avatar, true
		case "sex":
			return p.Sex, true
		case "birthday":
			return p.Birthday, true
		case "country":
			return p.Country, true
		case "street":
			return p.Street, true
		case "city":
			return p.City, true
		case "userId":
			return p.UserID, true
		case "memberTypeId":
			return p.MemberTypeID, true
		}
		return nil, false
	},
}

var postSchema = Schema[domain.Post]{
	Entity: domain.EntityPost,
	ID:     func(p domain.Post) string { return p.ID },
	SetID:  func(p *domain.Post, id string) { p.ID = id },
	Field: func(p domain.Post, field string) (any, bool) {
		switch field {
		case "id":
			return p.ID, true
		case "title":
			return p.Title, true
		case "content":
			return p.Content, true
		case "userId":
			return p.UserID, true
		}
		return nil, false
	},
}

var memberTypeSchema = Schema[domain.MemberType]{
	Entity: domain.EntityMemberType,
	ID:     func(m domain.MemberType) string { return m.ID },
	SetID:  func(m *domain.MemberType, id string) { m.ID = id },
	Field: func(m domain.MemberType, field string) (any, bool) {
		switch field {
		case "id":
			return m.ID, true
		case "discount":
			return m.Discount, true
		case "monthPostsLimit":
			return m.MonthPostsLimit, true
		}
		return nil, false
	},
}

// cloneUser copies the subscription list so callers never alias stored state.
// A nil list is normalized to empty so it serializes as [].
func cloneUser(u domain.User) domain.User {
	cp := u
	cp.SubscribedToUserIDs = append(make([]string, 0, len(u.SubscribedToUserIDs)), u.SubscribedToUserIDs...)
	return cp
}
