// Package core hosts the socialcore service: the lookup facade that validates
// identifiers and patches, serializes access to the store, and hands every
// committed change to the configured journals and publishers.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"socialcore/internal/infra/persistence/memory"
	"socialcore/pkg/domain"
)

// Service exposes the store's operations with uniform outcomes: success,
// domain.ErrNotFound, or domain.ErrInvalidRequest. Reads share the lock and
// mutations hold it exclusively, so each operation observes and leaves a
// consistent store.
type Service struct {
	mu          sync.RWMutex
	store       *memory.Store
	coordinator *Coordinator

	ids        domain.IDGenerator
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	journals   []ChangeJournal
	publishers []EventPublisher
}

// NewService constructs a service backed by the supplied store.
func NewService(store *memory.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = memory.NewStore(s.ids)
	}
	s.coordinator = NewCoordinator(s.store, s.clock.Now)
	return s
}

// NewInMemoryService creates a service over a freshly seeded store.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(nil, opts...)
}

// Store returns the underlying collections.
func (s *Service) Store() *memory.Store { return s.store }

// Snapshot returns a copy of all four collections taken under the read lock.
func (s *Service) Snapshot() memory.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ExportState()
}

// ListUsers returns every user in creation order.
func (s *Service) ListUsers(context.Context) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Users.FindMany(nil)
}

// ListPosts returns every post in creation order.
func (s *Service) ListPosts(context.Context) []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Posts.FindMany(nil)
}

// ListProfiles returns every profile in creation order.
func (s *Service) ListProfiles(context.Context) []domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Profiles.FindMany(nil)
}

// ListMemberTypes returns every membership plan.
func (s *Service) ListMemberTypes(context.Context) []domain.MemberType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.MemberTypes.FindMany(nil)
}

// GetUser returns the user with the given id.
func (s *Service) GetUser(_ context.Context, id string) (domain.User, error) {
	return get(s, s.store.Users, id, true)
}

// GetPost returns the post with the given id.
func (s *Service) GetPost(_ context.Context, id string) (domain.Post, error) {
	return get(s, s.store.Posts, id, true)
}

// GetProfile returns the profile with the given id.
func (s *Service) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	return get(s, s.store.Profiles, id, true)
}

// GetMemberType returns the plan with the given id. Plan ids are names, not uuids.
func (s *Service) GetMemberType(_ context.Context, id string) (domain.MemberType, error) {
	return get(s, s.store.MemberTypes, id, false)
}

func get[T any](s *Service, col *memory.Collection[T], id string, uuidID bool) (T, error) {
	var zero T
	if uuidID {
		if err := domain.CheckID(col.Entity(), id); err != nil {
			return zero, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := col.Get(id)
	if !ok {
		return zero, domain.NotFound(col.Entity(), id)
	}
	return rec, nil
}

// CreateUser stores a new user.
func (s *Service) CreateUser(ctx context.Context, in domain.NewUser) (created domain.User, err error) {
	defer s.observe(ctx, "create_user", time.Now(), &err)
	return mutate(ctx, s, func() (domain.User, []domain.Change, error) {
		u, changes := s.coordinator.CreateUser(in)
		return u, changes, nil
	})
}

// CreatePost stores a new post for an existing user.
func (s *Service) CreatePost(ctx context.Context, in domain.NewPost) (created domain.Post, err error) {
	defer s.observe(ctx, "create_post", time.Now(), &err)
	if err := in.Validate(); err != nil {
		return domain.Post{}, err
	}
	return mutate(ctx, s, func() (domain.Post, []domain.Change, error) {
		return s.coordinator.CreatePost(in)
	})
}

// CreateProfile stores a new profile; see Coordinator.CreateProfile for the preconditions.
func (s *Service) CreateProfile(ctx context.Context, in domain.NewProfile) (created domain.Profile, err error) {
	defer s.observe(ctx, "create_profile", time.Now(), &err)
	if err := in.Validate(); err != nil {
		return domain.Profile{}, err
	}
	return mutate(ctx, s, func() (domain.Profile, []domain.Change, error) {
		return s.coordinator.CreateProfile(in)
	})
}

// PatchUser applies a partial update to a user.
func (s *Service) PatchUser(ctx context.Context, id string, p domain.UserPatch) (updated domain.User, err error) {
	defer s.observe(ctx, "patch_user", time.Now(), &err)
	if err := checkPatch(domain.EntityUser, id, true, p.Fields(), domain.UserMutableFields); err != nil {
		return domain.User{}, err
	}
	return mutate(ctx, s, func() (domain.User, []domain.Change, error) {
		return s.coordinator.PatchUser(id, p)
	})
}

// PatchPost applies a partial update to a post.
func (s *Service) PatchPost(ctx context.Context, id string, p domain.PostPatch) (updated domain.Post, err error) {
	defer s.observe(ctx, "patch_post", time.Now(), &err)
	if err := checkPatch(domain.EntityPost, id, true, p.Fields(), domain.PostMutableFields); err != nil {
		return domain.Post{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Post{}, err
	}
	return mutate(ctx, s, func() (domain.Post, []domain.Change, error) {
		return s.coordinator.PatchPost(id, p)
	})
}

// PatchProfile applies a partial update to a profile.
func (s *Service) PatchProfile(ctx context.Context, id string, p domain.ProfilePatch) (updated domain.Profile, err error) {
	defer s.observe(ctx, "patch_profile", time.Now(), &err)
	if err := checkPatch(domain.EntityProfile, id, true, p.Fields(), domain.ProfileMutableFields); err != nil {
		return domain.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Profile{}, err
	}
	return mutate(ctx, s, func() (domain.Profile, []domain.Change, error) {
		return s.coordinator.PatchProfile(id, p)
	})
}

// PatchMemberType applies a partial update to a membership plan.
func (s *Service) PatchMemberType(ctx context.Context, id string, p domain.MemberTypePatch) (updated domain.MemberType, err error) {
	defer s.observe(ctx, "patch_member_type", time.Now(), &err)
	if err := checkPatch(domain.EntityMemberType, id, false, p.Fields(), domain.MemberTypeMutableFields); err != nil {
		return domain.MemberType{}, err
	}
	return mutate(ctx, s, func() (domain.MemberType, []domain.Change, error) {
		return s.coordinator.PatchMemberType(id, p)
	})
}

func checkPatch(entity domain.EntityType, id string, uuidID bool, fields, allowed []string) error {
	if uuidID {
		if err := domain.CheckID(entity, id); err != nil {
			return err
		}
	}
	if !domain.IsValidPatch(fields, allowed) {
		return domain.Invalidf("%s patch must set at least one of %v", entity, allowed)
	}
	return nil
}

// DeleteUser removes a user together with its posts, profiles, and incoming
// subscriptions, returning the user as it was before deletion.
func (s *Service) DeleteUser(ctx context.Context, id string) (deleted domain.User, err error) {
	defer s.observe(ctx, "delete_user", time.Now(), &err)
	if err := domain.CheckID(domain.EntityUser, id); err != nil {
		return domain.User{}, err
	}
	return mutate(ctx, s, func() (domain.User, []domain.Change, error) {
		return s.coordinator.DeleteUser(id)
	})
}

// DeletePost removes a post.
func (s *Service) DeletePost(ctx context.Context, id string) (deleted domain.Post, err error) {
	defer s.observe(ctx, "delete_post", time.Now(), &err)
	if err := domain.CheckID(domain.EntityPost, id); err != nil {
		return domain.Post{}, err
	}
	return mutate(ctx, s, func() (domain.Post, []domain.Change, error) {
		return s.coordinator.DeletePost(id)
	})
}

// DeleteProfile removes a profile.
func (s *Service) DeleteProfile(ctx context.Context, id string) (deleted domain.Profile, err error) {
	defer s.observe(ctx, "delete_profile", time.Now(), &err)
	if err := domain.CheckID(domain.EntityProfile, id); err != nil {
		return domain.Profile{}, err
	}
	return mutate(ctx, s, func() (domain.Profile, []domain.Change, error) {
		return s.coordinator.DeleteProfile(id)
	})
}

// SubscribeTo makes subscriberID follow targetID and returns the updated subscriber.
func (s *Service) SubscribeTo(ctx context.Context, targetID, subscriberID string) (subscriber domain.User, err error) {
	defer s.observe(ctx, "subscribe_to", time.Now(), &err)
	if err := checkPair(targetID, subscriberID); err != nil {
		return domain.User{}, err
	}
	return mutate(ctx, s, func() (domain.User, []domain.Change, error) {
		return s.coordinator.SubscribeTo(targetID, subscriberID)
	})
}

// UnsubscribeFrom removes the subscription of subscriberID to targetID.
func (s *Service) UnsubscribeFrom(ctx context.Context, targetID, subscriberID string) (subscriber domain.User, err error) {
	defer s.observe(ctx, "unsubscribe_from", time.Now(), &err)
	if err := checkPair(targetID, subscriberID); err != nil {
		return domain.User{}, err
	}
	return mutate(ctx, s, func() (domain.User, []domain.Change, error) {
		return s.coordinator.UnsubscribeFrom(targetID, subscriberID)
	})
}

func checkPair(targetID, subscriberID string) error {
	if err := domain.CheckID(domain.EntityUser, targetID); err != nil {
		return err
	}
	return domain.CheckID(domain.EntityUser, subscriberID)
}

// mutate runs fn under the write lock and dispatches whatever changes it
// applied, including those of a partially applied cascade.
func mutate[T any](ctx context.Context, s *Service, fn func() (T, []domain.Change, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, changes, err := fn()
	s.dispatch(ctx, changes)
	return out, err
}

func (s *Service) dispatch(ctx context.Context, changes []domain.Change) {
	if len(changes) == 0 {
		return
	}
	for _, j := range s.journals {
		if err := j.Append(ctx, changes); err != nil {
			s.metrics.SinkFailure("journal")
			s.logger.Warn("journal append failed", "changes", len(changes), "error", err)
		}
	}
	for _, p := range s.publishers {
		for _, ch := range changes {
			if err := p.Publish(ctx, ch); err != nil {
				s.metrics.SinkFailure("publisher")
				s.logger.Warn("publish change failed", "entity", ch.Entity, "id", ch.EntityID, "action", ch.Action, "error", err)
			}
		}
	}
}

func (s *Service) observe(ctx context.Context, op string, started time.Time, errp *error) {
	err := *errp
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrNotFound):
		s.logger.Info("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
}
