package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/streamhub/apiserver/internal/store"
	"github.com/streamhub/apiserver/internal/token"
	"github.com/streamhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByHandle(ctx context.Context, handle string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	SetRefreshToken(ctx context.Context, id int, refreshToken string) error
	RotateRefreshToken(ctx context.Context, id int, current, next string) error
	ClearRefreshToken(ctx context.Context, id int) error
	UpdateAvatar(ctx context.Context, id int, avatarURL string) (types.User, error)
	UpdateCoverImage(ctx context.Context, id int, coverImageURL string) (types.User, error)
}

// SubscriptionStore defines persistence operations for the subscription graph.
type SubscriptionStore interface {
	Create(ctx context.Context, subscriberID, channelID int) (types.Subscription, error)
	Delete(ctx context.Context, subscriberID, channelID int) error
	ChannelProfile(ctx context.Context, username string, viewerID int) (types.ChannelProfile, error)
}

// UserService encapsulates account, session and subscription use-cases.
type UserService struct {
	users     UserStore
	subs      SubscriptionStore
	issuer    *token.Issuer
	publisher *EventPublisher
}

func NewUserService(users UserStore, subs SubscriptionStore, issuer *token.Issuer, publisher *EventPublisher) *UserService {
	return &UserService{
		users:     users,
		subs:      subs,
		issuer:    issuer,
		publisher: publisher,
	}
}

// RegisterInput carries the registration form. Media uploads happen
// before registration; only the resulting references arrive here.
type RegisterInput struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// Register validates the input, hashes the password and persists the
// new user. Hashing happens here and in ChangePassword, nowhere else;
// no other write path can touch the digest.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.FullName = strings.TrimSpace(input.FullName)

	if input.Username == "" || input.Email == "" || input.FullName == "" || input.Password == "" {
		return types.User{}, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if input.AvatarURL == "" {
		return types.User{}, fmt.Errorf("%w: avatar is required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	created, err := s.users.Create(ctx, types.User{
		Username:      input.Username,
		Email:         input.Email,
		FullName:      input.FullName,
		AvatarURL:     input.AvatarURL,
		CoverImageURL: input.CoverImageURL,
		PasswordHash:  string(hash),
	})
	if err != nil {
		return types.User{}, err
	}

	s.publisher.UserRegistered(ctx, created)

	return created.Sanitized(), nil
}

// Login verifies the handle/password pair and establishes a session:
// a fresh access/refresh pair is issued and the refresh token is
// persisted as the single one valid for this user.
func (s *UserService) Login(ctx context.Context, handle, password string) (types.User, token.Pair, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || password == "" {
		return types.User{}, token.Pair{}, fmt.Errorf("%w: username or email and password are required", ErrValidation)
	}

	user, err := s.users.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same error as a wrong password: no account enumeration.
			return types.User{}, token.Pair{}, ErrInvalidCredentials
		}
		return types.User{}, token.Pair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, token.Pair{}, ErrInvalidCredentials
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return types.User{}, token.Pair{}, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return types.User{}, token.Pair{}, err
	}

	return user.Sanitized(), pair, nil
}

// Refresh rotates a refresh token: verify it cryptographically, resolve
// the user, issue a new pair and swap the stored token for the new one
// in a single conditional write. A token that was already rotated away
// (or cleared by logout) fails the swap and is rejected; one refresh
// token rotates exactly once even under concurrent calls.
func (s *UserService) Refresh(ctx context.Context, rawToken string) (types.User, token.Pair, error) {
	id, err := s.issuer.ParseRefreshToken(rawToken)
	if err != nil {
		return types.User{}, token.Pair{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, token.Pair{}, ErrInvalidToken
		}
		return types.User{}, token.Pair{}, err
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return types.User{}, token.Pair{}, err
	}

	if err := s.users.RotateRefreshToken(ctx, user.ID, rawToken, pair.RefreshToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, token.Pair{}, ErrInvalidToken
		}
		return types.User{}, token.Pair{}, err
	}

	return user.Sanitized(), pair, nil
}

// Logout invalidates the stored refresh token. Outstanding access
// tokens stay valid until expiry; the short access TTL bounds that
// exposure window.
func (s *UserService) Logout(ctx context.Context, id int) error {
	if err := s.users.ClearRefreshToken(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// ChangePassword re-verifies the old password before hashing and
// persisting the new one. Only the digest column is written.
func (s *UserService) ChangePassword(ctx context.Context, id int, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new passwords are required", ErrValidation)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, id, string(hash))
}

// GetByID returns the sanitized user.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	return user.Sanitized(), nil
}

// UpdateProfile updates the whitelisted identity fields. Both are
// required; password and tokens are out of reach of this operation.
func (s *UserService) UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return types.User{}, fmt.Errorf("%w: full name and email are required", ErrValidation)
	}

	user, err := s.users.UpdateProfile(ctx, id, fullName, email)
	if err != nil {
		return types.User{}, err
	}
	return user.Sanitized(), nil
}

// UpdateAvatar replaces the avatar reference and returns the old one so
// the caller can clean up the previous object.
func (s *UserService) UpdateAvatar(ctx context.Context, id int, avatarURL string) (types.User, string, error) {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, "", err
	}
	user, err := s.users.UpdateAvatar(ctx, id, avatarURL)
	if err != nil {
		return types.User{}, "", err
	}
	return user.Sanitized(), current.AvatarURL, nil
}

// UpdateCoverImage replaces the cover image reference and returns the
// old one so the caller can clean up the previous object.
func (s *UserService) UpdateCoverImage(ctx context.Context, id int, coverImageURL string) (types.User, string, error) {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, "", err
	}
	user, err := s.users.UpdateCoverImage(ctx, id, coverImageURL)
	if err != nil {
		return types.User{}, "", err
	}
	return user.Sanitized(), current.CoverImageURL, nil
}

// Subscribe adds a subscriber → channel edge. Following yourself is
// rejected; following a channel twice yields store.ErrConflict.
func (s *UserService) Subscribe(ctx context.Context, subscriberID, channelID int) (types.Subscription, error) {
	if subscriberID == channelID {
		return types.Subscription{}, fmt.Errorf("%w: cannot subscribe to yourself", ErrValidation)
	}

	sub, err := s.subs.Create(ctx, subscriberID, channelID)
	if err != nil {
		return types.Subscription{}, err
	}

	s.publisher.ChannelSubscribed(ctx, sub)

	return sub, nil
}

// Unsubscribe removes the subscriber → channel edge.
func (s *UserService) Unsubscribe(ctx context.Context, subscriberID, channelID int) error {
	return s.subs.Delete(ctx, subscriberID, channelID)
}

// GetChannelProfile returns the viewer-relative channel profile.
func (s *UserService) GetChannelProfile(ctx context.Context, username string, viewerID int) (types.ChannelProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.ChannelProfile{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	return s.subs.ChannelProfile(ctx, username, viewerID)
}
