// Package chat implements the direct-messaging panel: the counterpart
// directory and the per-conversation message timeline.
package chat

import (
	"context"
	"fmt"
	"sync"

	"classboard/pkg/types"
)

// ContactSource loads the counterpart list for the current session:
// students for an instructor, instructors for a student. The app wires
// the role-appropriate REST client in.
type ContactSource interface {
	Contacts(ctx context.Context) ([]types.Contact, error)
}

// Directory holds the loaded counterpart list and answers search
// queries against it.
type Directory struct {
	source ContactSource

	mu       sync.RWMutex
	contacts []types.Contact
}

// NewDirectory creates an empty directory over the given source.
func NewDirectory(source ContactSource) *Directory {
	return &Directory{source: source}
}

// Load fetches the counterpart list. On failure the directory falls
// back to an empty list rather than keeping stale contacts.
func (d *Directory) Load(ctx context.Context) error {
	contacts, err := d.source.Contacts(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.contacts = nil
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	d.contacts = contacts
	return nil
}

// Contacts returns the loaded counterpart list.
func (d *Directory) Contacts() []types.Contact {
	return d.Filter("")
}

// Filter returns the contacts matching the search query by display name
// or identity key.
func (d *Directory) Filter(query string) []types.Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matched := make([]types.Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		if c.Matches(query) {
			matched = append(matched, c)
		}
	}
	return matched
}
