package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"
)

// Mutable-field allowlists, keyed by JSON field name.
var (
	UserMutableFields       = []string{"name", "surname", "balance"}
	PostMutableFields       = []string{"title", "content", "userId"}
	ProfileMutableFields    = []string{"avatar", "sex", "birthday", "country", "street", "city", "userId", "memberTypeId"}
	MemberTypeMutableFields = []string{"discount", "monthPostsLimit"}
)

// IsValidPatch reports whether keys is non-empty and every key appears in allowed.
func IsValidPatch(keys, allowed []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !slices.Contains(allowed, k) {
			return false
		}
	}
	return true
}

// UserPatch is a partial update of a User. Nil fields are left untouched.
type UserPatch struct {
	Name    *string  `json:"name,omitempty"`
	Surname *string  `json:"surname,omitempty"`
	Balance *float64 `json:"balance,omitempty"`
}

// Fields lists the JSON names of the fields set on the patch.
func (p UserPatch) Fields() []string {
	var out []string
	if p.Name != nil {
		out = append(out, "name")
	}
	if p.Surname != nil {
		out = append(out, "surname")
	}
	if p.Balance != nil {
		out = append(out, "balance")
	}
	return out
}

// Apply merges the set fields into u.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Surname != nil {
		u.Surname = *p.Surname
	}
	if p.Balance != nil {
		u.Balance = *p.Balance
	}
}

// PostPatch is a partial update of a Post.
type PostPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	UserID  *string `json:"userId,omitempty"`
}

// Fields lists the JSON names of the fields set on the patch.
func (p PostPatch) Fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Content != nil {
		out = append(out, "content")
	}
	if p.UserID != nil {
		out = append(out, "userId")
	}
	return out
}

// Validate checks the format of referenced identifiers.
func (p PostPatch) Validate() error {
	if p.UserID != nil {
		return CheckID(EntityUser, *p.UserID)
	}
	return nil
}

// Apply merges the set fields into post.
func (p PostPatch) Apply(post *Post) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.UserID != nil {
		post.UserID = *p.UserID
	}
}

// ProfilePatch is a partial update of a Profile.
type ProfilePatch struct {
	Avatar       *string `json:"avatar,omitempty"`
	Sex          *string `json:"sex,omitempty"`
	Birthday     *int64  `json:"birthday,omitempty"`
	Country      *string `json:"country,omitempty"`
	Street       *string `json:"street,omitempty"`
	City         *string `json:"city,omitempty"`
	UserID       *string `json:"userId,omitempty"`
	MemberTypeID *string `json:"memberTypeId,omitempty"`
}

// Fields lists the JSON names of the fields set on the patch.
func (p ProfilePatch) Fields() []string {
	var out []string
	set := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	set("avatar", p.Avatar != nil)
	set("sex", p.Sex != nil)
	set("birthday", p.Birthday != nil)
	set("country", p.Country != nil)
	set("street", p.Street != nil)
	set("city", p.City != nil)
	set("userId", p.UserID != nil)
	set("memberTypeId", p.MemberTypeID != nil)
	return out
}

// Validate checks the format of referenced identifiers.
func (p ProfilePatch) Validate() error {
	if p.UserID != nil {
		return CheckID(EntityUser, *p.UserID)
	}
	return nil
}

// Apply merges the set fields into profile.
func (p ProfilePatch) Apply(profile *Profile) {
	if p.Avatar != nil {
		profile.Avatar = *p.Avatar
	}
	if p.Sex != nil {
		profile.Sex = *p.Sex
	}
	if p.Birthday != nil {
		profile.Birthday = *p.Birthday
	}
	if p.Country != nil {
		profile.Country = *p.Country
	}
	if p.Street != nil {
		profile.Street = *p.Street
	}
	if p.City != nil {
		profile.City = *p.City
	}
	if p.UserID != nil {
		profile.UserID = *p.UserID
	}
	if p.MemberTypeID != nil {
		profile.MemberTypeID = *p.MemberTypeID
	}
}

// MemberTypePatch is a partial update of a MemberType.
type MemberTypePatch struct {
	Discount        *float64 `json:"discount,omitempty"`
	MonthPostsLimit *int     `json:"monthPostsLimit,omitempty"`
}

// Fields lists the JSON names of the fields set on the patch.
func (p MemberTypePatch) Fields() []string {
	var out []string
	if p.Discount != nil {
		out = append(out, "discount")
	}
	if p.MonthPostsLimit != nil {
		out = append(out, "monthPostsLimit")
	}
	return out
}

// Apply merges the set fields into mt.
func (p MemberTypePatch) Apply(mt *MemberType) {
	if p.Discount != nil {
		mt.Discount = *p.Discount
	}
	if p.MonthPostsLimit != nil {
		mt.MonthPostsLimit = *p.MonthPostsLimit
	}
}

// ParseUserPatch decodes a JSON object into a UserPatch, rejecting empty
// objects, null values, and keys outside UserMutableFields.
func ParseUserPatch(data []byte) (UserPatch, error) {
	return parsePatch[UserPatch](data, UserMutableFields)
}

// ParsePostPatch decodes a JSON object into a PostPatch.
func ParsePostPatch(data []byte) (PostPatch, error) {
	p, err := parsePatch[PostPatch](data, PostMutableFields)
	if err != nil {
		return PostPatch{}, err
	}
	return p, p.Validate()
}

// ParseProfilePatch decodes a JSON object into a ProfilePatch.
func ParseProfilePatch(data []byte) (ProfilePatch, error) {
	p, err := parsePatch[ProfilePatch](data, ProfileMutableFields)
	if err != nil {
		return ProfilePatch{}, err
	}
	return p, p.Validate()
}

// ParseMemberTypePatch decodes a JSON object into a MemberTypePatch.
func ParseMemberTypePatch(data []byte) (MemberTypePatch, error) {
	return parsePatch[MemberTypePatch](data, MemberTypeMutableFields)
}

func parsePatch[T any](data []byte, allowed []string) (T, error) {
	var zero T
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return zero, Invalidf("patch must be a json object: %v", err)
	}
	keys := make([]string, 0, len(raw))
	for k, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return zero, Invalidf("patch field %q must not be null", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if !IsValidPatch(keys, allowed) {
		if len(keys) == 0 {
			return zero, Invalidf("patch must set at least one field")
		}
		return zero, Invalidf("patch keys %v not allowed; mutable fields are %v", keys, allowed)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, Invalidf("decode patch: %v", err)
	}
	return out, nil
}
