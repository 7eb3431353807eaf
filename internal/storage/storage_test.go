package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/security"
)

// mockPutter はObjectPutterのモック。
type mockPutter struct {
	putObjectFn func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.putObjectFn(ctx, params)
}

// mockStore はAvatarStoreのモック。
type mockStore struct {
	uploadFn func(ctx context.Context, userID string, body []byte, contentType string) (string, error)
}

func (m *mockStore) Upload(ctx context.Context, userID string, body []byte, contentType string) (string, error) {
	return m.uploadFn(ctx, userID, body, contentType)
}

// mockGuard はsecurity.LinkGuardのモック。
type mockGuard struct {
	validateURLFn func(rawURL string) error
	fetchFn       func(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error)
}

func (m *mockGuard) ValidateURL(rawURL string) error { return m.validateURLFn(rawURL) }

func (m *mockGuard) Fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	return m.fetchFn(ctx, rawURL, maxBytes)
}

// mockProfiles はProfileAvatarUpdaterのモック。
type mockProfiles struct {
	updateAvatarURLFn func(ctx context.Context, id, avatarURL string) error
}

func (m *mockProfiles) UpdateAvatarURL(ctx context.Context, id, avatarURL string) error {
	return m.updateAvatarURLFn(ctx, id, avatarURL)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestS3AvatarStore_Upload(t *testing.T) {
	var got *s3.PutObjectInput
	putter := &mockPutter{putObjectFn: func(_ context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		got = params
		return &s3.PutObjectOutput{}, nil
	}}
	store := NewS3AvatarStore(putter, "avatars-bucket", "https://cdn.example.com/")

	u, err := store.Upload(context.Background(), "user-1", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if u != "https://cdn.example.com/avatars/user-1" {
		t.Errorf("url = %q", u)
	}
	if aws.ToString(got.Bucket) != "avatars-bucket" {
		t.Errorf("bucket = %q", aws.ToString(got.Bucket))
	}
	if aws.ToString(got.Key) != "avatars/user-1" {
		t.Errorf("key = %q", aws.ToString(got.Key))
	}
	if aws.ToString(got.ContentType) != "image/png" {
		t.Errorf("content type = %q", aws.ToString(got.ContentType))
	}
}

func TestS3AvatarStore_RejectsUnsupportedType(t *testing.T) {
	putter := &mockPutter{putObjectFn: func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		t.Error("PutObject should not be called")
		return nil, nil
	}}
	store := NewS3AvatarStore(putter, "b", "https://cdn.example.com")
	if _, err := store.Upload(context.Background(), "u", []byte("x"), "text/html"); err == nil {
		t.Error("expected error for text/html")
	}
}

func TestAllowedContentType(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"image/png", true},
		{"image/JPEG", true},
		{"image/webp; charset=binary", true},
		{"image/svg+xml", false},
		{"text/html", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := AllowedContentType(tt.in); got != tt.want {
			t.Errorf("AllowedContentType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAvatarService_SetAvatar(t *testing.T) {
	var updated string
	svc := NewAvatarService(
		&mockStore{uploadFn: func(_ context.Context, userID string, _ []byte, _ string) (string, error) {
			return "https://cdn.example.com/avatars/" + userID, nil
		}},
		nil,
		&mockProfiles{updateAvatarURLFn: func(_ context.Context, _ string, avatarURL string) error {
			updated = avatarURL
			return nil
		}},
		discardLogger(),
	)

	u, err := svc.SetAvatar(context.Background(), "user-1", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("SetAvatar returned error: %v", err)
	}
	if u != updated {
		t.Errorf("profile updated with %q, want %q", updated, u)
	}
}

func TestAvatarService_SetAvatar_UploadFailure(t *testing.T) {
	svc := NewAvatarService(
		&mockStore{uploadFn: func(context.Context, string, []byte, string) (string, error) {
			return "", errors.New("s3 down")
		}},
		nil,
		&mockProfiles{updateAvatarURLFn: func(context.Context, string, string) error {
			t.Error("UpdateAvatarURL should not be called")
			return nil
		}},
		discardLogger(),
	)

	_, err := svc.SetAvatar(context.Background(), "user-1", []byte("img"), "image/png")
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Code != model.ErrCodeUploadFailed {
		t.Errorf("err = %v, want UPLOAD_FAILED", err)
	}
}

func TestAvatarService_ImportFromURL(t *testing.T) {
	tests := []struct {
		name     string
		validate error
		fetchErr error
		wantCode string
	}{
		{name: "invalid url", validate: errors.New("http not allowed"), wantCode: model.ErrCodeInvalidURL},
		{name: "too large", fetchErr: security.ErrResponseTooLarge, wantCode: model.ErrCodeUploadFailed},
		{name: "fetch failure", fetchErr: errors.New("blocked"), wantCode: model.ErrCodeInvalidURL},
		{name: "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := &mockGuard{
				validateURLFn: func(string) error { return tt.validate },
				fetchFn: func(_ context.Context, _ string, maxBytes int64) ([]byte, string, error) {
					if maxBytes != MaxAvatarBytes {
						t.Errorf("maxBytes = %d, want %d", maxBytes, MaxAvatarBytes)
					}
					if tt.fetchErr != nil {
						return nil, "", tt.fetchErr
					}
					return []byte("img"), "image/png", nil
				},
			}
			svc := NewAvatarService(
				&mockStore{uploadFn: func(context.Context, string, []byte, string) (string, error) {
					return "https://cdn.example.com/avatars/u", nil
				}},
				guard,
				&mockProfiles{updateAvatarURLFn: func(context.Context, string, string) error { return nil }},
				discardLogger(),
			)

			_, err := svc.ImportFromURL(context.Background(), "u", "https://images.example.com/me.png")
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			apiErr, ok := model.AsAPIError(err)
			if !ok || apiErr.Code != tt.wantCode {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}
}
