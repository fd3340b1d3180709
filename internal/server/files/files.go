package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("files")

const MaxAvatarSize = 5 << 20

const avatarsDir = "avatars"

var (
	ErrEmptyFile   = errors.New("cannot store empty file")
	ErrNotImage    = errors.New("only image files are allowed")
	ErrTooLarge    = errors.New("file size must be less than 5MB")
	ErrInvalidName = errors.New("invalid file name")
)

// Store keeps avatar images under <dir>/avatars and hands out URLs rooted at
// baseURL.
type Store struct {
	dir     string
	baseURL string
}

func New(dir, baseURL string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, avatarsDir), 0755); err != nil {
		return nil, fmt.Errorf("could not create upload directory: %w", err)
	}
	return &Store{dir: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// AvatarURL is the public URL of a stored avatar file name.
func (s *Store) AvatarURL(name string) string {
	return s.baseURL + "/api/files/avatars/" + name
}

// StoreAvatar writes r as <userID>_<8 hex><ext> and returns its URL. size is
// the declared size; the copy is capped regardless.
func (s *Store) StoreAvatar(userID, filename, contentType string, size int64, r io.Reader) (string, error) {
	if size == 0 {
		return "", ErrEmptyFile
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}
	if size > MaxAvatarSize {
		return "", ErrTooLarge
	}

	name := userID + "_" + uuid.NewString()[:8] + filepath.Ext(filepath.Base(filename))
	path := filepath.Join(s.dir, avatarsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxAvatarSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = ErrEmptyFile
	}
	if err == nil && n > MaxAvatarSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return s.AvatarURL(name), nil
}

// DeleteAvatar removes the file behind an avatar URL. Failures are logged
// and otherwise ignored.
func (s *Store) DeleteAvatar(avatarURL string) {
	if avatarURL == "" {
		return
	}
	path, err := s.AvatarPath(avatarURL[strings.LastIndex(avatarURL, "/")+1:])
	if err != nil {
		log.Warningf("not deleting avatar %q: %v", avatarURL, err)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warningf("failed to delete avatar file: %v", err)
	}
}

// AvatarPath resolves a bare file name inside the avatars directory.
func (s *Store) AvatarPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, avatarsDir, name), nil
}
