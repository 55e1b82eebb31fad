package auth

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
	symbolPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

const MinPasswordLength = 8

// Password rule failures, reported in this order.
const (
	ReasonTooShort  = "Password must be at least 8 characters long"
	ReasonNoUpper   = "Password must contain at least one uppercase letter"
	ReasonNoLower   = "Password must contain at least one lowercase letter"
	ReasonNoDigit   = "Password must contain at least one digit"
	ReasonNoSymbol  = "Password must contain at least one special character"
	ReasonValidPass = "Password is valid"
)

// ValidateEmail checks the local@domain.tld shape only.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword returns the first failing strength rule.
func ValidatePassword(password string) (bool, string) {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return false, ReasonTooShort
	case !upperPattern.MatchString(password):
		return false, ReasonNoUpper
	case !lowerPattern.MatchString(password):
		return false, ReasonNoLower
	case !digitPattern.MatchString(password):
		return false, ReasonNoDigit
	case !symbolPattern.MatchString(password):
		return false, ReasonNoSymbol
	}
	return true, ReasonValidPass
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares in constant time.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
