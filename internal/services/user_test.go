package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/streamhub/apiserver/config"
	"github.com/streamhub/apiserver/internal/store"
	"github.com/streamhub/apiserver/internal/token"
	"github.com/streamhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	nextID int
	users  map[int]types.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nextID: 1, users: map[int]types.User{}}
}

func (f *fakeUserStore) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByHandle(_ context.Context, handle string) (types.User, error) {
	handle = strings.ToLower(handle)
	for _, user := range f.users {
		if user.Username == handle || user.Email == handle {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserStore) Create(_ context.Context, user types.User) (types.User, error) {
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = f.nextID
	f.nextID++
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id int, fullName, email string) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.FullName = fullName
	user.Email = strings.ToLower(email)
	f.users[id] = user
	return user, nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id int, passwordHash string) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	f.users[id] = user
	return nil
}

func (f *fakeUserStore) SetRefreshToken(_ context.Context, id int, refreshToken string) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.RefreshToken = refreshToken
	f.users[id] = user
	return nil
}

func (f *fakeUserStore) RotateRefreshToken(_ context.Context, id int, current, next string) error {
	user, ok := f.users[id]
	if !ok || user.RefreshToken != current {
		return store.ErrNotFound
	}
	user.RefreshToken = next
	f.users[id] = user
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(_ context.Context, id int) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.RefreshToken = ""
	f.users[id] = user
	return nil
}

func (f *fakeUserStore) UpdateAvatar(_ context.Context, id int, avatarURL string) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.AvatarURL = avatarURL
	f.users[id] = user
	return user, nil
}

func (f *fakeUserStore) UpdateCoverImage(_ context.Context, id int, coverImageURL string) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.CoverImageURL = coverImageURL
	f.users[id] = user
	return user, nil
}

type fakeSubStore struct {
	users  *fakeUserStore
	nextID int
	edges  []types.Subscription
}

func newFakeSubStore(users *fakeUserStore) *fakeSubStore {
	return &fakeSubStore{users: users, nextID: 1}
}

func (f *fakeSubStore) Create(_ context.Context, subscriberID, channelID int) (types.Subscription, error) {
	if _, ok := f.users.users[channelID]; !ok {
		return types.Subscription{}, store.ErrNotFound
	}
	for _, edge := range f.edges {
		if edge.SubscriberID == subscriberID && edge.ChannelID == channelID {
			return types.Subscription{}, store.ErrConflict
		}
	}
	sub := types.Subscription{
		ID:           f.nextID,
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    time.Now(),
	}
	f.nextID++
	f.edges = append(f.edges, sub)
	return sub, nil
}

func (f *fakeSubStore) Delete(_ context.Context, subscriberID, channelID int) error {
	for i, edge := range f.edges {
		if edge.SubscriberID == subscriberID && edge.ChannelID == channelID {
			f.edges = append(f.edges[:i], f.edges[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeSubStore) ChannelProfile(_ context.Context, username string, viewerID int) (types.ChannelProfile, error) {
	channel, err := f.users.GetByHandle(context.Background(), username)
	if err != nil {
		return types.ChannelProfile{}, err
	}
	profile := types.ChannelProfile{
		ID:            channel.ID,
		Username:      channel.Username,
		Email:         channel.Email,
		FullName:      channel.FullName,
		AvatarURL:     channel.AvatarURL,
		CoverImageURL: channel.CoverImageURL,
	}
	for _, edge := range f.edges {
		if edge.ChannelID == channel.ID {
			profile.SubscriberCount++
			if edge.SubscriberID == viewerID {
				profile.IsSubscribed = true
			}
		}
		if edge.SubscriberID == channel.ID {
			profile.SubscribedToCount++
		}
	}
	return profile, nil
}

func newTestService(t *testing.T) (*UserService, *fakeUserStore, *fakeSubStore) {
	t.Helper()
	issuer, err := token.NewIssuer(authConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	users := newFakeUserStore()
	subs := newFakeSubStore(users)
	return NewUserService(users, subs, issuer, nil), users, subs
}

func authConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:  "access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    10 * 24 * time.Hour,
	}
}

func registerAlice(t *testing.T, svc *UserService) types.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{
		Username:  "alice",
		Email:     "alice@x.com",
		FullName:  "Alice Example",
		Password:  "Secret123",
		AvatarURL: "http://m/b/avatars/a.png",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, users, _ := newTestService(t)
	registerAlice(t, svc)

	stored := users.users[1]
	if stored.PasswordHash == "Secret123" || stored.PasswordHash == "" {
		t.Fatalf("password stored in plaintext or empty")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Secret123")); err != nil {
		t.Fatalf("digest does not verify: %v", err)
	}

	// A digest belonging to someone else must not verify.
	otherHash, _ := bcrypt.GenerateFromPassword([]byte("OtherSecret"), bcrypt.DefaultCost)
	if err := bcrypt.CompareHashAndPassword(otherHash, []byte("Secret123")); err == nil {
		t.Fatalf("password verified against another user's digest")
	}
}

func TestRegisterSanitizesResponse(t *testing.T) {
	svc, _, _ := newTestService(t)
	user := registerAlice(t, svc)
	if user.PasswordHash != "" || user.RefreshToken != "" {
		t.Fatalf("credential material leaked: %+v", user)
	}
}

func TestRegisterDuplicateHandleConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:  "ALICE",
		Email:     "other@x.com",
		FullName:  "Alice Two",
		Password:  "Secret123",
		AvatarURL: "http://m/b/avatars/b.png",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterInput{
		Username:  "alice2",
		Email:     "Alice@X.com",
		FullName:  "Alice Three",
		Password:  "Secret123",
		AvatarURL: "http://m/b/avatars/c.png",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestRegisterRequiresAvatar(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "bob",
		Email:    "bob@x.com",
		FullName: "Bob Example",
		Password: "Secret123",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoginUniformFailures(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, _, wrongPassword := svc.Login(context.Background(), "alice", "WrongSecret")
	_, _, unknownHandle := svc.Login(context.Background(), "ghost", "Secret123")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownHandle, ErrInvalidCredentials) {
		t.Fatalf("unknown handle: expected ErrInvalidCredentials, got %v", unknownHandle)
	}
	// Same error value: nothing distinguishes the two outcomes.
	if !errors.Is(wrongPassword, unknownHandle) {
		t.Fatalf("login failures are distinguishable")
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	svc, users, _ := newTestService(t)
	registerAlice(t, svc)

	for _, handle := range []string{"alice", "ALICE", "alice@x.com", "Alice@X.com"} {
		user, pair, err := svc.Login(context.Background(), handle, "Secret123")
		if err != nil {
			t.Fatalf("Login(%q): %v", handle, err)
		}
		if user.PasswordHash != "" || user.RefreshToken != "" {
			t.Fatalf("credential material leaked for %q", handle)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			t.Fatalf("missing tokens for %q", handle)
		}
		if users.users[1].RefreshToken != pair.RefreshToken {
			t.Fatalf("refresh token not persisted for %q", handle)
		}
	}
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), "alice", "Secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token not rotated")
	}

	// Presenting the rotated-away token again must fail.
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused token accepted: %v", err)
	}

	// The replacement still works.
	if _, _, err := svc.Refresh(context.Background(), next.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
}

func TestRefreshRejectsGarbageAndForeignTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	if _, _, err := svc.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: expected ErrInvalidToken, got %v", err)
	}

	// Well-formed but never persisted: fails the possession check.
	issuer, err := token.NewIssuer(authConfig())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	foreign, err := issuer.IssueRefreshToken(types.User{ID: 1})
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token accepted: %v", err)
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), "alice", "Secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(context.Background(), 1); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout accepted: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	if err := svc.ChangePassword(context.Background(), 1, "WrongSecret", "NewSecret456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password accepted: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), 1, "Secret123", "NewSecret456"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "alice", "Secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "NewSecret456"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestSubscribeAndChannelProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := registerAlice(t, svc)

	bob, err := svc.Register(context.Background(), RegisterInput{
		Username:  "bob",
		Email:     "bob@x.com",
		FullName:  "Bob Example",
		Password:  "Secret123",
		AvatarURL: "http://m/b/avatars/b.png",
	})
	if err != nil {
		t.Fatalf("Register bob: %v", err)
	}

	if _, err := svc.Subscribe(context.Background(), bob.ID, bob.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("self-subscribe accepted: %v", err)
	}

	if _, err := svc.Subscribe(context.Background(), bob.ID, alice.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), bob.ID, alice.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate subscribe accepted: %v", err)
	}

	profile, err := svc.GetChannelProfile(context.Background(), "alice", bob.ID)
	if err != nil {
		t.Fatalf("GetChannelProfile: %v", err)
	}
	if profile.SubscriberCount != 1 || !profile.IsSubscribed {
		t.Fatalf("unexpected profile for bob's view: %+v", profile)
	}

	// Alice's own view: same counts, not subscribed to herself.
	profile, err = svc.GetChannelProfile(context.Background(), "alice", alice.ID)
	if err != nil {
		t.Fatalf("GetChannelProfile: %v", err)
	}
	if profile.SubscriberCount != 1 || profile.IsSubscribed {
		t.Fatalf("unexpected profile for alice's view: %+v", profile)
	}

	if err := svc.Unsubscribe(context.Background(), bob.ID, alice.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	profile, err = svc.GetChannelProfile(context.Background(), "alice", bob.ID)
	if err != nil {
		t.Fatalf("GetChannelProfile: %v", err)
	}
	if profile.SubscriberCount != 0 || profile.IsSubscribed {
		t.Fatalf("unsubscribe not reflected: %+v", profile)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), "alice", "Secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old refresh token still valid: %v", err)
	}

	if err := svc.Logout(context.Background(), 1); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("newest refresh token valid after logout: %v", err)
	}
}
