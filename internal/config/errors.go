package config

import "fmt"

// Error is a ConfigError per SPEC_FULL.md §7: a schema violation, undeclared
// reference, invalid option value, unresolved template, or bad merge shape.
// It is always terminal at load time.
type Error struct {
	File   string
	Reason string
}

func (e *Error) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

func errf(file, format string, args ...interface{}) *Error {
	return &Error{File: file, Reason: fmt.Sprintf(format, args...)}
}
