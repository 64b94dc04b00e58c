package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/webident/loginza/internal/users"
)

// maxAvatarBytes caps the download so a huge remote image cannot exhaust memory.
const maxAvatarBytes = 5 << 20

// Uploader stores avatar bytes and returns a URL for them. Satisfied by
// MinIOStorage and by test fakes.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
}

// Service downloads a profile photo from the broker-provided URL and stores
// it as the account's avatar. Failures here are never fatal to login.
type Service struct {
	http    *http.Client
	storage Uploader
	users   users.Repository
}

func NewService(storage Uploader, u users.Repository) *Service {
	return &Service{
		http:    &http.Client{Timeout: 10 * time.Second},
		storage: storage,
		users:   u,
	}
}

// SetFromURL fetches the photo and persists it as the user's avatar.
func (s *Service) SetFromURL(ctx context.Context, userID int64, photoURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return fmt.Errorf("avatar request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("avatar fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("avatar fetch: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := io.LimitReader(resp.Body, maxAvatarBytes)
	key := fmt.Sprintf("avatars/%d%s", userID, extForContentType(contentType))
	url, err := s.storage.Upload(ctx, key, body, -1, contentType)
	if err != nil {
		return fmt.Errorf("avatar upload: %w", err)
	}

	if err := s.users.SetAvatarURL(ctx, userID, url); err != nil {
		return fmt.Errorf("avatar save: %w", err)
	}
	return nil
}

func extForContentType(ct string) string {
	switch ct {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/jpeg":
		return ".jpg"
	}
	return ""
}
