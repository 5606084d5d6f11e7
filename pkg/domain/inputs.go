package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"
)

// NewUser holds the fields supplied when creating a User.
type NewUser struct {
	Name    string  `json:"name"`
	Surname string  `json:"surname"`
	Balance float64 `json:"balance"`
}

// NewPost holds the fields supplied when creating a Post.
type NewPost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// Validate checks the author id format.
func (in NewPost) Validate() error { return CheckID(EntityUser, in.UserID) }

// NewProfile holds the fields supplied when creating a Profile.
type NewProfile struct {
	Avatar       string `json:"avatar"`
	Sex          string `json:"sex"`
	Birthday     int64  `json:"birthday"`
	Country      string `json:"country"`
	Street       string `json:"street"`
	City         string `json:"city"`
	UserID       string `json:"userId"`
	MemberTypeID string `json:"memberTypeId"`
}

// Validate checks the owner id format. Member type ids are plan names and are
// resolved by lookup only.
func (in NewProfile) Validate() error { return CheckID(EntityUser, in.UserID) }

// SubscriptionRequest names the subscriber in subscribe and unsubscribe calls.
type SubscriptionRequest struct {
	UserID string `json:"userId"`
}

// Required-field sets for creation bodies.
var (
	newUserFields      = []string{"name", "surname", "balance"}
	newPostFields      = []string{"title", "content", "userId"}
	newProfileFields   = ProfileMutableFields
	subscriptionFields = []string{"userId"}
)

// ParseNewUser decodes a creation body that must carry exactly name, surname and balance.
func ParseNewUser(data []byte) (NewUser, error) {
	return parseExact[NewUser](data, newUserFields)
}

// ParseNewPost decodes a creation body for a Post and validates its author id.
func ParseNewPost(data []byte) (NewPost, error) {
	in, err := parseExact[NewPost](data, newPostFields)
	if err != nil {
		return NewPost{}, err
	}
	return in, in.Validate()
}

// ParseNewProfile decodes a creation body for a Profile and validates its owner id.
func ParseNewProfile(data []byte) (NewProfile, error) {
	in, err := parseExact[NewProfile](data, newProfileFields)
	if err != nil {
		return NewProfile{}, err
	}
	return in, in.Validate()
}

// ParseSubscriptionRequest decodes a {"userId": ...} body.
func ParseSubscriptionRequest(data []byte) (SubscriptionRequest, error) {
	in, err := parseExact[SubscriptionRequest](data, subscriptionFields)
	if err != nil {
		return SubscriptionRequest{}, err
	}
	return in, CheckID(EntityUser, in.UserID)
}

// parseExact requires every name in required to be present and non-null and
// rejects any other key.
func parseExact[T any](data []byte, required []string) (T, error) {
	var zero T
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return zero, Invalidf("body must be a json object: %v", err)
	}
	var unknown []string
	for k, v := range raw {
		if !slices.Contains(required, k) {
			unknown = append(unknown, k)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return zero, Invalidf("field %q must not be null", k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return zero, Invalidf("unknown fields %v", unknown)
	}
	for _, name := range required {
		if _, ok := raw[name]; !ok {
			return zero, Invalidf("missing required field %q", name)
		}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, Invalidf("decode body: %v", err)
	}
	return out, nil
}
