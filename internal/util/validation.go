package util

import (
	"regexp"
)

var nameRegexp = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*([-]?[a-zA-Z0-9]+)+$`)

func ValidateName(s string) bool {
	return nameRegexp.MatchString(s)
}
