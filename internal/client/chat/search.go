package chat

import (
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// SearchDebounce is the input inactivity after which a search is issued.
const SearchDebounce = 300 * time.Millisecond

// Search tracks the search box. Every keystroke bumps a sequence number;
// only the newest one may issue a request or install results.
type Search struct {
	query     string
	seq       uint64
	Results   []models.User
	Err       error
	Searching bool
}

// Input records the new query text. When schedule is true the caller should
// call Ready(seq) after SearchDebounce; a blank query clears the results
// immediately.
func (s *Search) Input(query string) (seq uint64, schedule bool) {
	s.seq++
	s.query = query
	if strings.TrimSpace(query) == "" {
		s.Results = nil
		s.Err = nil
		s.Searching = false
		return s.seq, false
	}
	return s.seq, true
}

// Ready reports whether seq is still the latest input, and if so the query
// to send.
func (s *Search) Ready(seq uint64) (string, bool) {
	if seq != s.seq || strings.TrimSpace(s.query) == "" {
		return "", false
	}
	s.Searching = true
	return strings.TrimSpace(s.query), true
}

// Resolve installs the response for seq. Stale responses are ignored.
func (s *Search) Resolve(seq uint64, users []models.User, err error) bool {
	if seq != s.seq {
		return false
	}
	s.Searching = false
	s.Err = err
	if err != nil {
		s.Results = nil
	} else {
		s.Results = users
	}
	return true
}

func (s *Search) Query() string {
	return s.query
}

func (s *Search) Clear() {
	s.Input("")
}
