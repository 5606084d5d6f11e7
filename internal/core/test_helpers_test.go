package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"socialcore/pkg/domain"
)

type recordingJournal struct {
	mu      sync.Mutex
	changes []domain.Change
	err     error
}

func (j *recordingJournal) Append(_ context.Context, changes []domain.Change) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.changes = append(j.changes, changes...)
	return j.err
}

func (j *recordingJournal) snapshot() []domain.Change {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.Change(nil), j.changes...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Change
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, change domain.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, change)
	return p.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	observed map[string][]bool
	failures map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{observed: map[string][]bool{}, failures: map[string]int{}}
}

func (m *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed[op] = append(m.observed[op], success)
}

func (m *recordingMetrics) SinkFailure(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[sink]++
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(string, ...any) {}

func mustCreateUser(t *testing.T, svc *Service, name string) domain.User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), domain.NewUser{Name: name, Surname: name + "son", Balance: 10})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func profileFor(userID string) domain.NewProfile {
	return domain.NewProfile{
		Avatar:       "avatar.png",
		Sex:          "female",
		Birthday:     631152000,
		Country:      "NO",
		Street:       "Karl Johans gate 1",
		City:         "Oslo",
		UserID:       userID,
		MemberTypeID: domain.MemberTypeBasic,
	}
}

func expectInvalid(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func expectNotFound(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
