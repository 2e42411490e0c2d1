package domain

import (
	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// snippetLimit bounds the question/response fragments embedded in dedup keys
// so key size stays independent of payload size.
const snippetLimit = 200

// Snippet returns at most snippetLimit bytes of s for use in bounded keys.
func Snippet(s string) string {
	if len(s) > snippetLimit {
		return s[:snippetLimit]
	}
	return s
}
