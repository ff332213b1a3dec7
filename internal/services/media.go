package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/streamhub/apiserver/internal/media"
)

// MediaService uploads user media to object storage and hands back the
// public URL persisted on the user record.
type MediaService struct {
	store media.Store
}

func NewMediaService(store media.Store) *MediaService {
	return &MediaService{store: store}
}

// UploadImage stores an image under a fresh key in the named folder
// ("avatars" or "covers") and returns its public URL. The original
// filename only contributes the extension.
func (s *MediaService) UploadImage(ctx context.Context, folder, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if err := s.store.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return s.store.URL(key), nil
}

// Remove deletes the object a previously returned URL points at.
// Failures are logged and swallowed: a stale object in the bucket never
// blocks the profile update that replaced it.
func (s *MediaService) Remove(ctx context.Context, rawURL string) {
	if rawURL == "" {
		return
	}
	key, err := s.keyFromURL(rawURL)
	if err != nil {
		log.Printf("media: skip delete of %q: %v", rawURL, err)
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		log.Printf("media: delete %q: %v", key, err)
	}
}

func (s *MediaService) keyFromURL(rawURL string) (string, error) {
	marker := "/" + s.store.Bucket() + "/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", errors.New("url does not reference the configured bucket")
	}
	key := rawURL[idx+len(marker):]
	if key == "" {
		return "", errors.New("url has no object key")
	}
	return key, nil
}
