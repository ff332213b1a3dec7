package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/streamhub/apiserver/internal/services"
	"github.com/streamhub/apiserver/internal/store"
	"github.com/streamhub/apiserver/internal/token"
	"github.com/streamhub/apiserver/types"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	maxMultipartMemory = 32 << 20

	formFieldUsername = "username"
	formFieldEmail    = "email"
	formFieldFullName = "full_name"
	formFieldPassword = "password"
	formFieldAvatar   = "avatar"
	formFieldCover    = "cover_image"
)

// AuthHandler provides registration, session and profile endpoints.
type AuthHandler struct {
	userService  *services.UserService
	mediaService *services.MediaService
	issuer       *token.Issuer
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, mediaService *services.MediaService, issuer *token.Issuer) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		mediaService: mediaService,
		issuer:       issuer,
	}
}

// UserRouter registers user/session routes on the given router.
func UserRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.With(handler.RequireAuth).Post("/logout", handler.Logout)
	r.With(handler.RequireAuth).Post("/change-password", handler.ChangePassword)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.With(handler.RequireAuth).Patch("/me", handler.UpdateProfile)
	r.With(handler.RequireAuth).Patch("/me/avatar", handler.UpdateAvatar)
	r.With(handler.RequireAuth).Patch("/me/cover", handler.UpdateCoverImage)
}

// RequireAuth verifies the access token, re-fetches the user and
// attaches it to the request context. The token comes from the
// accessToken cookie (browsers) or the Authorization header (everyone
// else); the cookie wins when both are present. Every failure is the
// same 401 so callers cannot distinguish expired from malformed from
// deleted-account tokens.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessTokenFromRequest(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		id, _, err := h.issuer.ParseAccessToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.userService.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := contextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Register creates a new user account. The request is a multipart form:
// identity fields plus a required avatar file and an optional cover image.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	input := services.RegisterInput{
		Username: strings.TrimSpace(r.FormValue(formFieldUsername)),
		Email:    strings.TrimSpace(r.FormValue(formFieldEmail)),
		FullName: strings.TrimSpace(r.FormValue(formFieldFullName)),
		Password: r.FormValue(formFieldPassword),
	}
	if input.Username == "" || input.Email == "" || input.FullName == "" || input.Password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}

	avatarURL, found, err := h.uploadFormImage(r, formFieldAvatar, "avatars")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	input.AvatarURL = avatarURL

	coverURL, found, err := h.uploadFormImage(r, formFieldCover, "covers")
	if err != nil {
		h.mediaService.Remove(r.Context(), avatarURL)
		writeError(w, http.StatusInternalServerError, "failed to store cover image")
		return
	}
	if found {
		input.CoverImageURL = coverURL
	}

	user, err := h.userService.Register(r.Context(), input)
	if err != nil {
		h.mediaService.Remove(r.Context(), input.AvatarURL)
		h.mediaService.Remove(r.Context(), input.CoverImageURL)
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "username or email already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// Login verifies credentials and establishes a session. The token pair
// travels both ways: cookies for browsers, body for everyone else.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	handle := strings.TrimSpace(req.Username)
	if handle == "" {
		handle = strings.TrimSpace(req.Email)
	}

	user, pair, err := h.userService.Login(r.Context(), handle, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, "username or email and password are required")
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "failed to log in")
		}
		return
	}

	setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, SessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout invalidates the stored refresh token and expires both cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.userService.Logout(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Refresh rotates the refresh token and returns a new pair. The
// incoming token comes from the refreshToken cookie or the JSON body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = strings.TrimSpace(req.RefreshToken)
		}
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	_, pair, err := h.userService.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

// ChangePassword re-verifies the old password before storing the new one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid old password")
		default:
			writeError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// UpdateProfile updates the mutable identity fields.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "email already in use")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{User: updated})
}

// UpdateAvatar replaces the avatar and deletes the previous object.
func (h *AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, formFieldAvatar, "avatars", h.userService.UpdateAvatar)
}

// UpdateCoverImage replaces the cover image and deletes the previous object.
func (h *AuthHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, formFieldCover, "covers", h.userService.UpdateCoverImage)
}

func (h *AuthHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field, folder string,
	apply func(ctx context.Context, id int, url string) (types.User, string, error),
) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	url, found, err := h.uploadFormImage(r, field, folder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, field+" file is required")
		return
	}

	updated, oldURL, err := apply(r.Context(), user.ID, url)
	if err != nil {
		h.mediaService.Remove(r.Context(), url)
		writeError(w, http.StatusInternalServerError, "failed to update image")
		return
	}

	h.mediaService.Remove(r.Context(), oldURL)

	writeJSON(w, http.StatusOK, UserResponse{User: updated})
}

func (h *AuthHandler) uploadFormImage(r *http.Request, field, folder string) (string, bool, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return "", false, nil
		}
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return "", false, nil
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return "", true, err
	}
	defer file.Close()

	url, err := h.mediaService.UploadImage(
		r.Context(),
		folder,
		header.Filename,
		file,
		header.Size,
		header.Header.Get("Content-Type"),
	)
	if err != nil {
		return "", true, err
	}
	return url, true, nil
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func setAuthCookies(w http.ResponseWriter, pair token.Pair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
		})
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

type SessionResponse struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}
