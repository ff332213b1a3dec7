package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/streamhub/apiserver/internal/services"
	"github.com/streamhub/apiserver/internal/store"
)

// ChannelRouter registers channel profile routes on the given router.
// They require an authenticated viewer: the profile is viewer-relative.
func ChannelRouter(r chi.Router, handler *AuthHandler) {
	r.Use(handler.RequireAuth)
	r.Get("/{username}", handler.GetChannelProfile)
}

// SubscriptionRouter registers subscription edge routes on the given router.
func SubscriptionRouter(r chi.Router, handler *AuthHandler) {
	r.Use(handler.RequireAuth)
	r.Post("/{channelID}", handler.Subscribe)
	r.Delete("/{channelID}", handler.Unsubscribe)
}

// GetChannelProfile returns a channel's profile with subscription
// aggregates computed relative to the requesting user.
func (h *AuthHandler) GetChannelProfile(w http.ResponseWriter, r *http.Request) {
	viewer, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	username := chi.URLParam(r, "username")
	profile, err := h.userService.GetChannelProfile(r.Context(), username, viewer.ID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "channel not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch channel")
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Subscribe makes the requesting user follow the channel.
func (h *AuthHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	viewer, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	channelID, err := parseChannelID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.userService.Subscribe(r.Context(), viewer.ID, channelID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "already subscribed")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "channel not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to subscribe")
		}
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe removes the requesting user's subscription to the channel.
func (h *AuthHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	viewer, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	channelID, err := parseChannelID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Unsubscribe(r.Context(), viewer.ID, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "unsubscribed"})
}

func parseChannelID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "channelID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid channel id")
	}
	return id, nil
}
