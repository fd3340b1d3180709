package files

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "http://localhost:8080/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStoreAvatar(t *testing.T) {
	s := newTestStore(t)
	body := []byte("\x89PNG\r\n\x1a\nimage-bytes")

	url, err := s.StoreAvatar("u1", "me.png", "image/png", int64(len(body)), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("StoreAvatar: %v", err)
	}

	pattern := regexp.MustCompile(`^http://localhost:8080/api/files/avatars/u1_[0-9a-f]{8}\.png$`)
	if !pattern.MatchString(url) {
		t.Fatalf("unexpected url: %s", url)
	}

	path, err := s.AvatarPath(url[strings.LastIndex(url, "/")+1:])
	if err != nil {
		t.Fatalf("AvatarPath: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, body) {
		t.Fatalf("stored file mismatch: %v", err)
	}

	s.DeleteAvatar(url)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected avatar to be deleted, got %v", err)
	}
}

func TestStoreAvatarRejects(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name        string
		contentType string
		size        int64
		body        []byte
		want        error
	}{
		{"empty", "image/png", 0, nil, ErrEmptyFile},
		{"not an image", "text/plain", 4, []byte("text"), ErrNotImage},
		{"declared too large", "image/png", MaxAvatarSize + 1, []byte("x"), ErrTooLarge},
		{"actually too large", "image/png", 10, bytes.Repeat([]byte("x"), MaxAvatarSize+1), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StoreAvatar("u1", "a.png", tt.contentType, tt.size, bytes.NewReader(tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, avatarsDir))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected uploads left %d files behind", len(entries))
	}
}

func TestAvatarPathRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "..", "../secret", "a/b.png"} {
		if _, err := s.AvatarPath(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("AvatarPath(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}
