package authcore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const testPassword = "Abc12345!"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type memoryUserStore struct {
	mu      sync.Mutex
	seq     int
	byID    map[string]UserRecord
	byEmail map[string]string

	verificationHashes map[string][32]byte
	resetHashes        map[string][32]byte
	backupCodes        map[string]map[[32]byte]struct{}
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byID:               make(map[string]UserRecord),
		byEmail:            make(map[string]string),
		verificationHashes: make(map[string][32]byte),
		resetHashes:        make(map[string][32]byte),
		backupCodes:        make(map[string]map[[32]byte]struct{}),
	}
}

func (s *memoryUserStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *memoryUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (s *memoryUserStore) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(input.Email)
	if _, exists := s.byEmail[key]; exists {
		return UserRecord{}, ErrEmailExists
	}

	s.seq++
	expires := input.VerificationExpires
	user := UserRecord{
		UserID:              fmt.Sprintf("u%d", s.seq),
		Email:               input.Email,
		Name:                input.Name,
		PasswordHash:        input.PasswordHash,
		Role:                input.Role,
		Active:              true,
		VerificationExpires: &expires,
	}
	s.byID[user.UserID] = user
	s.byEmail[key] = user.UserID
	s.verificationHashes[user.UserID] = input.VerificationHash
	return user, nil
}

func (s *memoryUserStore) update(userID string, fn func(*UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	s.byID[userID] = user
	return nil
}

func (s *memoryUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	return s.update(userID, func(u *UserRecord) { u.PasswordHash = newHash })
}

func (s *memoryUserStore) IncrementFailedLogins(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	user.FailedLogins++
	s.byID[userID] = user
	return user.FailedLogins, nil
}

func (s *memoryUserStore) SetLockout(_ context.Context, userID string, until time.Time) error {
	return s.update(userID, func(u *UserRecord) { u.LockoutUntil = &until })
}

func (s *memoryUserStore) ClearLockout(_ context.Context, userID string) error {
	return s.update(userID, func(u *UserRecord) {
		u.FailedLogins = 0
		u.LockoutUntil = nil
	})
}

func (s *memoryUserStore) GetUserByVerificationHash(_ context.Context, hash [32]byte) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, stored := range s.verificationHashes {
		if stored == hash {
			return s.byID[userID], nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *memoryUserStore) SetEmailVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.verificationHashes, userID)
	s.mu.Unlock()
	return s.update(userID, func(u *UserRecord) {
		u.EmailVerified = true
		u.VerificationExpires = nil
	})
}

func (s *memoryUserStore) SetResetToken(_ context.Context, userID string, hash [32]byte, expires time.Time) error {
	s.mu.Lock()
	s.resetHashes[userID] = hash
	s.mu.Unlock()
	return s.update(userID, func(u *UserRecord) { u.ResetExpires = &expires })
}

func (s *memoryUserStore) GetUserByResetHash(_ context.Context, hash [32]byte) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, stored := range s.resetHashes {
		if stored == hash {
			return s.byID[userID], nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *memoryUserStore) ClearResetToken(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.resetHashes, userID)
	s.mu.Unlock()
	return s.update(userID, func(u *UserRecord) { u.ResetExpires = nil })
}

func (s *memoryUserStore) SetTOTPSecret(_ context.Context, userID string, secret []byte) error {
	return s.update(userID, func(u *UserRecord) {
		u.TOTPSecret = secret
		u.TOTPEnabled = false
	})
}

func (s *memoryUserStore) EnableTOTP(_ context.Context, userID string) error {
	return s.update(userID, func(u *UserRecord) { u.TOTPEnabled = true })
}

func (s *memoryUserStore) DisableTOTP(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.backupCodes, userID)
	s.mu.Unlock()
	return s.update(userID, func(u *UserRecord) {
		u.TOTPEnabled = false
		u.TOTPSecret = nil
	})
}

func (s *memoryUserStore) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]struct{}, len(codes))
	for _, code := range codes {
		set[code.Hash] = struct{}{}
	}
	s.backupCodes[userID] = set
	return nil
}

func (s *memoryUserStore) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.backupCodes[userID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *memoryUserStore) setActive(userID string, active bool) {
	_ = s.update(userID, func(u *UserRecord) { u.Active = active })
}

type memoryRefreshStore struct {
	mu      sync.Mutex
	records map[[32]byte]RefreshTokenRecord
}

func newMemoryRefreshStore() *memoryRefreshStore {
	return &memoryRefreshStore{
		records: make(map[[32]byte]RefreshTokenRecord),
	}
}

func (s *memoryRefreshStore) Save(_ context.Context, record RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TokenHash] = record
	return nil
}

func (s *memoryRefreshStore) Find(_ context.Context, tokenHash [32]byte) (RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tokenHash]
	if !ok {
		return RefreshTokenRecord{}, ErrRefreshInvalid
	}
	return record, nil
}

func (s *memoryRefreshStore) Delete(_ context.Context, tokenHash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tokenHash)
	return nil
}

func (s *memoryRefreshStore) DeleteAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, record := range s.records {
		if record.UserID == userID {
			delete(s.records, hash)
		}
	}
	return nil
}

func (s *memoryRefreshStore) DeleteExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, record := range s.records {
		if !record.ExpiresAt.After(now) {
			delete(s.records, hash)
		}
	}
	return nil
}

func (s *memoryRefreshStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = testSecret
	// Cheapest parameters the hasher accepts; tests hash a lot.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Metrics.Enabled = true
	// Individual tests opt back in with their own presets.
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *memoryUserStore, *memoryRefreshStore) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMemoryUserStore()
	refresh := newMemoryRefreshStore()

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRefreshTokenStore(refresh).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, users, refresh
}

// registerVerifiedUser creates an account through the public flow and marks
// it verified. Returns the user ID.
func registerVerifiedUser(t *testing.T, engine *Engine, email string) string {
	t.Helper()

	result, err := engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := engine.VerifyEmail(context.Background(), result.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return result.UserID
}

func setEngineClock(engine *Engine, at time.Time) *time.Time {
	current := at
	engine.now = func() time.Time { return current }
	return &current
}
