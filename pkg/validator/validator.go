package validator

import (
	"fmt"
	"strings"
	"unicode"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// First returns one message, preferring fields in the order given.
func (v ValidationErrors) First(fields ...string) string {
	for _, f := range fields {
		if msg, ok := v[f]; ok {
			return msg
		}
	}
	for _, msg := range v {
		return msg
	}
	return ""
}

const (
	maxChannelIDLen   = 100
	maxChannelNameLen = 100
)

// ValidateChannel checks a channel id used as a routing key and its display name.
func ValidateChannel(id, name string) ValidationErrors {
	errs := make(ValidationErrors)

	if id == "" {
		errs.Add("id", "Channel id is required")
	} else if len(id) > maxChannelIDLen {
		errs.Add("id", fmt.Sprintf("Channel id must be at most %d characters", maxChannelIDLen))
	} else if strings.IndexFunc(id, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		errs.Add("id", "Channel id cannot contain whitespace")
	}

	if len(strings.TrimSpace(name)) > maxChannelNameLen {
		errs.Add("name", "Channel name is too long")
	} else if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		errs.Add("name", "Channel name cannot contain control characters")
	}

	return errs
}
