package api

import (
	"regexp"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

const (
	MinPasswordLength = 6
	MaxAvatarSize     = 5 << 20
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func ValidateRegister(req models.RegisterRequest) error {
	var v validator
	v.check(!blank(req.Name), "name", "Name is required")
	if blank(req.Username) {
		v.fail("username", "Username is required")
	} else {
		v.check(usernamePattern.MatchString(req.Username), "username",
			"Username must be 3-32 letters, digits or underscores")
	}
	validateEmail(&v, req.Email)
	if blank(req.Password) {
		v.fail("password", "Password is required")
	} else {
		v.check(len(req.Password) >= MinPasswordLength, "password", "Password must be at least 6 characters")
	}
	return v.err()
}

func ValidateLogin(req models.LoginRequest) error {
	var v validator
	v.check(!blank(req.Email), "email", "Email is required")
	v.check(req.Password != "", "password", "Password is required")
	return v.err()
}

func validateEmail(v *validator, email string) {
	if blank(email) {
		v.fail("email", "Email is required")
		return
	}
	v.check(emailPattern.MatchString(email), "email", "Enter a valid email address")
}

// ValidatePasswordChange checks the form locally; confirm must repeat the new
// password.
func ValidatePasswordChange(change models.PasswordChange, confirm string) error {
	var v validator
	v.check(change.CurrentPassword != "", "currentPassword", "Current password is required")
	switch {
	case change.NewPassword != confirm:
		v.fail("newPassword", "New passwords do not match")
	case len(change.NewPassword) < MinPasswordLength:
		v.fail("newPassword", "Password must be at least 6 characters")
	}
	return v.err()
}

func ValidateProfile(update models.ProfileUpdate) error {
	var v validator
	v.check(!blank(update.Name), "name", "Name is required")
	if blank(update.Username) {
		v.fail("username", "Username is required")
	} else {
		v.check(usernamePattern.MatchString(update.Username), "username",
			"Username must be 3-32 letters, digits or underscores")
	}
	validateEmail(&v, update.Email)
	return v.err()
}
