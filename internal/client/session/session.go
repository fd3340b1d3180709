package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/mitchellh/go-homedir"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("session")

var (
	ErrNotLoggedIn    = errors.New("session: not logged in")
	ErrCorruptSession = errors.New("session: stored session is corrupt")
)

// Fixed storage keys inside the session file.
const (
	keyUser  = "user"
	keyToken = "token"

	fileName = "session.json"
)

type Session struct {
	Identity models.Identity
	Token    string
}

// AuthState is what the auth guard sees when it asks the store.
type AuthState int

const (
	Anonymous AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Store keeps the identity and bearer token on disk. The file is the source
// of truth; the store remembers the last decoded result so Token and State
// only decrypt it once per change.
type Store struct {
	dir string
	mu  sync.Mutex

	// cached is nil with loaded set when the file held no session.
	cached *Session
	loaded bool
}

func GetConfigDir(profileName string) string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cldzchat", profileName)
}

// New returns a store for the named profile under the user's config dir.
func New(profileName string) (*Store, error) {
	dir := GetConfigDir(profileName)
	if dir == "" {
		return nil, fmt.Errorf("could not get config directory")
	}
	return NewAt(dir), nil
}

func NewAt(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fileName)
}

// Load returns the stored session, ErrNotLoggedIn when there is none, or an
// error wrapping ErrCorruptSession when the file cannot be understood.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Session, error) {
	if !s.loaded {
		sess, err := s.decode()
		switch {
		case err == nil:
			s.remember(sess)
		case errors.Is(err, ErrNotLoggedIn):
			s.remember(nil)
		default:
			return nil, err
		}
	}
	if s.cached == nil {
		return nil, ErrNotLoggedIn
	}
	sess := *s.cached
	return &sess, nil
}

func (s *Store) remember(sess *Session) {
	s.cached = sess
	s.loaded = true
}

func (s *Store) decode() (*Session, error) {
	rec, err := s.readRecord()
	if err != nil {
		return nil, err
	}

	if rec[keyUser] == "" || rec[keyToken] == "" {
		return nil, ErrNotLoggedIn
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(rec[keyUser]), &identity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("%w: identity has no id", ErrCorruptSession)
	}

	return &Session{Identity: identity, Token: rec[keyToken]}, nil
}

func (s *Store) readRecord() (map[string]string, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	rec := map[string]string{}
	decrypted, err := decrypt(string(data))
	if err != nil {
		// Plaintext files from older builds are migrated in place.
		if jerr := json.Unmarshal(data, &rec); jerr == nil {
			log.Notice("migrating plaintext session file")
			if werr := s.writeRecord(rec); werr != nil {
				log.Warningf("session migration failed: %v", werr)
			}
			return rec, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	if err := json.Unmarshal(decrypted, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return rec, nil
}

func (s *Store) writeRecord(rec map[string]string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(encrypted); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path())
}

// Save writes identity and token together.
func (s *Store) Save(identity models.Identity, token string) error {
	user, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRecord(map[string]string{keyUser: string(user), keyToken: token}); err != nil {
		s.loaded = false
		return err
	}
	s.remember(&Session{Identity: identity, Token: token})
	return nil
}

// Clear blanks both keys. The file and its keys stay in place.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRecord(map[string]string{keyUser: "", keyToken: ""}); err != nil {
		s.loaded = false
		return err
	}
	s.remember(nil)
	return nil
}

// Token returns the stored bearer token, or "" when logged out.
func (s *Store) Token() string {
	sess, err := s.Load()
	if err != nil {
		return ""
	}
	return sess.Token
}

// UpdateIdentity applies fn to the stored identity and persists the result.
func (s *Store) UpdateIdentity(fn func(*models.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load()
	if err != nil {
		return err
	}
	fn(&sess.Identity)

	user, err := json.Marshal(sess.Identity)
	if err != nil {
		return err
	}
	if err := s.writeRecord(map[string]string{keyUser: string(user), keyToken: sess.Token}); err != nil {
		s.loaded = false
		return err
	}
	s.remember(sess)
	return nil
}

// State reports whether a usable session exists. A corrupt session reads as
// Anonymous so the caller sends the user back to login.
func (s *Store) State() (AuthState, *Session) {
	sess, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrCorruptSession) {
			log.Warningf("discarding unreadable session: %v", err)
		}
		return Anonymous, nil
	}
	return Authenticated, sess
}
