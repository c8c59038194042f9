// Package item defines the Item value flowing from sources to sinks.
package item

import "strings"

// Item is a name/value secret, optionally described, collected from a source.
type Item struct {
	Name        string
	Value       string
	Description string
}

// Equal reports whether two items carry the same name and value.
// Description is not part of identity.
func (i Item) Equal(other Item) bool {
	return i.Name == other.Name && i.Value == other.Value
}

// Valid reports whether the item's name is non-empty and has no leading or
// trailing whitespace.
func (i Item) Valid() bool {
	if i.Name == "" {
		return false
	}
	return i.Name == strings.TrimSpace(i.Name)
}
