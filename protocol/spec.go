package protocol

import (
	"github.com/Nuitfanee/clicksync/config"
)

// EntryKind classifies how a SPEC entry produces wire traffic.
type EntryKind int

const (
	// Direct entries write one register from one semantic value.
	Direct EntryKind = iota
	// Compound entries share a register between several semantic fields;
	// their encoder reads the whole next state for a merged encoding.
	Compound
	// Virtual entries have no register of their own and expand into a
	// bespoke command sequence.
	Virtual
)

// Ctx is the evaluation context handed to an entry's validate, encode and
// plan functions.
type Ctx struct {
	Patch config.Patch
	Prev  *config.MouseConfig
	Next  *config.MouseConfig
	Caps  *config.Capabilities
}

// Entry is one declarative feature description. The SPEC table is the single
// source of protocol knowledge; adding a feature is adding an entry.
type Entry struct {
	Key      string
	Kind     EntryKind
	Priority uint8
	// Triggers lists the patch keys that make a Compound/Virtual entry
	// fire in addition to its own key.
	Triggers []string

	Validate func(*Ctx) error
	Encode   func(*Ctx) (WriteSpec, error)
	Plan     func(*Ctx) ([]Command, error)
}

// firesOn reports whether the entry should run for the given patch.
func (e *Entry) firesOn(patch config.Patch) bool {
	if patch.Has(e.Key) {
		return true
	}
	for _, t := range e.Triggers {
		if patch.Has(t) {
			return true
		}
	}
	return false
}

// Table binds a vendor's SPEC entries to its codec and planning hooks.
type Table struct {
	Vendor  config.VendorTag
	Entries []Entry

	// Expand applies vendor dependency rules, mutating the patch (e.g.
	// copying the current polling rate in when only the performance mode
	// changes). Runs after alias normalization, before the overlay.
	Expand func(prev *config.MouseConfig, patch config.Patch) error

	// Normalize fixes up the overlaid next state: clamp indices, fill
	// missing DPI slots, re-derive merged register fields.
	Normalize func(next *config.MouseConfig, caps *config.Capabilities)

	// Pack turns an encoder's WriteSpec into a framed Command.
	Pack func(WriteSpec) Command

	// Gate, when set, brackets sensitive command runs.
	Gate *Gate

	// DedupKey overrides the default last-write-wins key derivation.
	DedupKey func(Command) string
}
