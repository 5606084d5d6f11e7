package core

import (
	"slices"
	"time"

	"socialcore/internal/infra/persistence/memory"
	"socialcore/pkg/domain"
)

// Coordinator enforces the cross-collection rules: profile preconditions,
// subscription edges, and the user deletion cascade. Each collection call is an
// independent step; a failure part way through leaves earlier steps applied and
// the changes returned so far describe exactly what was applied.
type Coordinator struct {
	store *memory.Store
	now   func() time.Time
}

// NewCoordinator binds a coordinator to store.
func NewCoordinator(store *memory.Store, now func() time.Time) *Coordinator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{store: store, now: now}
}

func (c *Coordinator) change(entity domain.EntityType, id string, action domain.Action, before, after any) domain.Change {
	return domain.Change{Entity: entity, EntityID: id, Action: action, Before: before, After: after, OccurredAt: c.now()}
}

// CreateUser stores a user with an empty subscription list.
func (c *Coordinator) CreateUser(in domain.NewUser) (domain.User, []domain.Change) {
	created := c.store.Users.Create(domain.User{
		Name:                in.Name,
		Surname:             in.Surname,
		Balance:             in.Balance,
		SubscribedToUserIDs: []string{},
	})
	return created, []domain.Change{c.change(domain.EntityUser, created.ID, domain.ActionCreate, nil, created)}
}

// CreatePost stores a post after checking its author exists.
func (c *Coordinator) CreatePost(in domain.NewPost) (domain.Post, []domain.Change, error) {
	if _, ok := c.store.Users.Get(in.UserID); !ok {
		return domain.Post{}, nil, domain.Invalidf("user %q does not exist", in.UserID)
	}
	created := c.store.Posts.Create(domain.Post{Title: in.Title, Content: in.Content, UserID: in.UserID})
	return created, []domain.Change{c.change(domain.EntityPost, created.ID, domain.ActionCreate, nil, created)}, nil
}

// CreateProfile stores a profile when its user and member type exist and the
// user has no profile yet. All three lookups run before any check is applied.
func (c *Coordinator) CreateProfile(in domain.NewProfile) (domain.Profile, []domain.Change, error) {
	_, userExists := c.store.Users.Get(in.UserID)
	_, profileExists := c.store.Profiles.FindOne(memory.Filter{Field: "userId", Value: in.UserID})
	_, memberTypeExists := c.store.MemberTypes.Get(in.MemberTypeID)

	var reasons []string
	if !userExists {
		reasons = append(reasons, "user does not exist")
	}
	if !memberTypeExists {
		reasons = append(reasons, "member type does not exist")
	}
	if profileExists {
		reasons = append(reasons, "user already has a profile")
	}
	if len(reasons) > 0 {
		return domain.Profile{}, nil, domain.Invalidf("cannot create profile for user %q: %v", in.UserID, reasons)
	}
	created := c.store.Profiles.Create(domain.Profile{
		Avatar:       in.Avatar,
		Sex:          in.Sex,
		Birthday:     in.Birthday,
		Country:      in.Country,
		Street:       in.Street,
		City:         in.City,
		UserID:       in.UserID,
		MemberTypeID: in.MemberTypeID,
	})
	return created, []domain.Change{c.change(domain.EntityProfile, created.ID, domain.ActionCreate, nil, created)}, nil
}

// PatchUser merges p into the stored user.
func (c *Coordinator) PatchUser(id string, p domain.UserPatch) (domain.User, []domain.Change, error) {
	return patch(c, c.store.Users, id, p.Apply)
}

// PatchPost merges p into the stored post.
func (c *Coordinator) PatchPost(id string, p domain.PostPatch) (domain.Post, []domain.Change, error) {
	return patch(c, c.store.Posts, id, p.Apply)
}

// PatchProfile merges p into the stored profile. Moving a profile onto a user
// that already owns a different profile is rejected.
func (c *Coordinator) PatchProfile(id string, p domain.ProfilePatch) (domain.Profile, []domain.Change, error) {
	if p.UserID != nil {
		if _, ok := c.store.Profiles.Get(id); !ok {
			return domain.Profile{}, nil, domain.NotFound(domain.EntityProfile, id)
		}
		if owned, ok := c.store.Profiles.FindOne(memory.Filter{Field: "userId", Value: *p.UserID}); ok && owned.ID != id {
			return domain.Profile{}, nil, domain.Invalidf("user %q already has profile %q", *p.UserID, owned.ID)
		}
	}
	return patch(c, c.store.Profiles, id, p.Apply)
}

// PatchMemberType merges p into the stored member type.
func (c *Coordinator) PatchMemberType(id string, p domain.MemberTypePatch) (domain.MemberType, []domain.Change, error) {
	return patch(c, c.store.MemberTypes, id, p.Apply)
}

func patch[T any](c *Coordinator, col *memory.Collection[T], id string, apply func(*T)) (T, []domain.Change, error) {
	before, ok := col.Get(id)
	if !ok {
		var zero T
		return zero, nil, domain.NotFound(col.Entity(), id)
	}
	after, err := col.Change(id, apply)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return after, []domain.Change{c.change(col.Entity(), id, domain.ActionUpdate, before, after)}, nil
}

// DeletePost removes a post.
func (c *Coordinator) DeletePost(id string) (domain.Post, []domain.Change, error) {
	return remove(c, c.store.Posts, id)
}

// DeleteProfile removes a profile.
func (c *Coordinator) DeleteProfile(id string) (domain.Profile, []domain.Change, error) {
	return remove(c, c.store.Profiles, id)
}

func remove[T any](c *Coordinator, col *memory.Collection[T], id string) (T, []domain.Change, error) {
	removed, err := col.Delete(id)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return removed, []domain.Change{c.change(col.Entity(), id, domain.ActionDelete, removed, nil)}, nil
}

// DeleteUser removes a user and everything that refers to it, in order:
// incoming subscription edges, posts, profiles, then the user itself. It
// returns the user as it was before the cascade started.
func (c *Coordinator) DeleteUser(id string) (domain.User, []domain.Change, error) {
	snapshot, ok := c.store.Users.Get(id)
	if !ok {
		return domain.User{}, nil, domain.NotFound(domain.EntityUser, id)
	}
	var changes []domain.Change

	for _, subscriber := range c.store.Users.FindMany(nil) {
		if !slices.Contains(subscriber.SubscribedToUserIDs, id) {
			continue
		}
		updated, err := c.store.Users.Change(subscriber.ID, func(u *domain.User) {
			u.SubscribedToUserIDs = slices.DeleteFunc(u.SubscribedToUserIDs, func(target string) bool { return target == id })
		})
		if err != nil {
			return domain.User{}, changes, err
		}
		changes = append(changes, c.change(domain.EntityUser, subscriber.ID, domain.ActionUpdate, subscriber, updated))
	}

	for _, post := range c.store.Posts.FindMany(&memory.Filter{Field: "userId", Value: id}) {
		_, postChanges, err := remove(c, c.store.Posts, post.ID)
		if err != nil {
			return domain.User{}, changes, err
		}
		changes = append(changes, postChanges...)
	}

	for _, profile := range c.store.Profiles.FindMany(&memory.Filter{Field: "userId", Value: id}) {
		_, profileChanges, err := remove(c, c.store.Profiles, profile.ID)
		if err != nil {
			return domain.User{}, changes, err
		}
		changes = append(changes, profileChanges...)
	}

	_, userChanges, err := remove(c, c.store.Users, id)
	if err != nil {
		return domain.User{}, changes, err
	}
	return snapshot, append(changes, userChanges...), nil
}

// SubscribeTo records that subscriberID follows targetID and returns the
// updated subscriber.
func (c *Coordinator) SubscribeTo(targetID, subscriberID string) (domain.User, []domain.Change, error) {
	subscriber, err := c.subscriptionPair(targetID, subscriberID)
	if err != nil {
		return domain.User{}, nil, err
	}
	if slices.Contains(subscriber.SubscribedToUserIDs, targetID) {
		return domain.User{}, nil, domain.Invalidf("user %q is already subscribed to %q", subscriberID, targetID)
	}
	return patch(c, c.store.Users, subscriberID, func(u *domain.User) {
		u.SubscribedToUserIDs = append(u.SubscribedToUserIDs, targetID)
	})
}

// UnsubscribeFrom removes the edge from subscriberID to targetID and returns
// the updated subscriber.
func (c *Coordinator) UnsubscribeFrom(targetID, subscriberID string) (domain.User, []domain.Change, error) {
	subscriber, err := c.subscriptionPair(targetID, subscriberID)
	if err != nil {
		return domain.User{}, nil, err
	}
	if !slices.Contains(subscriber.SubscribedToUserIDs, targetID) {
		return domain.User{}, nil, domain.Invalidf("user %q is not subscribed to %q", subscriberID, targetID)
	}
	return patch(c, c.store.Users, subscriberID, func(u *domain.User) {
		u.SubscribedToUserIDs = slices.DeleteFunc(u.SubscribedToUserIDs, func(id string) bool { return id == targetID })
	})
}

func (c *Coordinator) subscriptionPair(targetID, subscriberID string) (domain.User, error) {
	if _, ok := c.store.Users.Get(targetID); !ok {
		return domain.User{}, domain.NotFound(domain.EntityUser, targetID)
	}
	subscriber, ok := c.store.Users.Get(subscriberID)
	if !ok {
		return domain.User{}, domain.NotFound(domain.EntityUser, subscriberID)
	}
	return subscriber, nil
}
