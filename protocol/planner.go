package protocol

import (
	"fmt"
	"sort"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/transform"
)

// dpiTableKeys are the patch keys that imply a DPI-table rewrite.
var dpiTableKeys = []string{
	config.KeyDpiSlots, config.KeyDpiSlotsX, config.KeyDpiSlotsY,
	config.KeyDpiSlotCount, config.KeyCurrentDpiIndex, config.KeyDpiSlot,
}

// Plan turns a cached state plus a raw patch into the next state and the
// ordered command sequence that realizes it.
func Plan(t *Table, caps *config.Capabilities, prev *config.MouseConfig, patch config.Patch) (config.Patch, *config.MouseConfig, []Command, error) {
	if prev == nil {
		return nil, nil, nil, cfgerror.Unknown("planner invoked without a previous state")
	}

	// 1. Normalize keys and reject unknown ones.
	p := patch.Normalized()
	for key := range p {
		if !caps.SupportsKey(key) {
			return nil, nil, nil, cfgerror.FeatureUnsupported(key)
		}
	}

	// 2. Dependency expansion: shared rules first, then vendor rules.
	expandShared(caps, prev, p)
	if t.Expand != nil {
		if err := t.Expand(prev, p); err != nil {
			return nil, nil, nil, err
		}
	}

	// 3. Overlay the patch and normalize the result.
	next := prev.Clone()
	for _, key := range sortedKeys(p) {
		if err := config.ApplyKey(next, key, p[key]); err != nil {
			return nil, nil, nil, err
		}
	}
	normalizeShared(next, caps)
	if t.Normalize != nil {
		t.Normalize(next, caps)
	}

	// 4. Collect firing entries.
	var firing []*Entry
	for i := range t.Entries {
		if t.Entries[i].firesOn(p) {
			firing = append(firing, &t.Entries[i])
		}
	}

	ctx := &Ctx{Patch: p, Prev: prev, Next: next, Caps: caps}

	// 5. Validate before any command is produced.
	for _, e := range firing {
		if e.Validate != nil {
			if err := e.Validate(ctx); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	// 6. Dispatch order: priority, then key for determinism.
	sort.SliceStable(firing, func(i, j int) bool {
		if firing[i].Priority != firing[j].Priority {
			return firing[i].Priority < firing[j].Priority
		}
		return firing[i].Key < firing[j].Key
	})

	// 7. Produce commands.
	var cmds []Command
	for _, e := range firing {
		switch {
		case e.Plan != nil:
			out, err := e.Plan(ctx)
			if err != nil {
				return nil, nil, nil, err
			}
			cmds = append(cmds, out...)
		case e.Encode != nil:
			ws, err := e.Encode(ctx)
			if err != nil {
				return nil, nil, nil, err
			}
			cmds = append(cmds, t.Pack(ws))
		}
	}

	// 9 (before 8 here; gate commands never collide). Last-write-wins dedup.
	cmds = dedup(t, cmds)

	// 8. Secure gate around sensitive writes.
	if t.Gate != nil && anySensitive(cmds) {
		bracketed := make([]Command, 0, len(cmds)+2)
		bracketed = append(bracketed, t.Gate.UnlockCommand())
		bracketed = append(bracketed, cmds...)
		bracketed = append(bracketed, t.Gate.LockCommand())
		cmds = bracketed
	}

	return p, next, cmds, nil
}

// expandShared applies the vendor-independent dependency rules.
func expandShared(caps *config.Capabilities, prev *config.MouseConfig, p config.Patch) {
	for _, k := range dpiTableKeys {
		if p.Has(k) && caps.SupportsKey(config.KeyDpiProfile) {
			p[config.KeyDpiProfile] = true
			break
		}
	}

	// Keep the debounce pair coherent whichever half was patched.
	if p.Has(config.KeyDebounceMS) && !p.Has(config.KeyDebounceLevel) {
		if ms, ok := config.AsInt(p[config.KeyDebounceMS]); ok {
			if level, ok := transform.MSToDebounceLevel(ms); ok {
				p[config.KeyDebounceLevel] = level
			}
		}
	}
	if p.Has(config.KeyDebounceLevel) && !p.Has(config.KeyDebounceMS) {
		if level, ok := config.AsString(p[config.KeyDebounceLevel]); ok {
			if ms, ok := transform.DebounceLevelToMS(level); ok {
				p[config.KeyDebounceMS] = ms
			}
		}
	}
}

// normalizeShared clamps the DPI table invariants on the overlaid state.
func normalizeShared(next *config.MouseConfig, caps *config.Capabilities) {
	if next.DpiSlots != nil && caps.DpiSlotMax > 0 {
		for len(next.DpiSlots) < caps.DpiSlotMax {
			last := config.DpiSlot{X: uint16(caps.DpiMin), Y: uint16(caps.DpiMin)}
			if n := len(next.DpiSlots); n > 0 {
				last = next.DpiSlots[n-1]
			}
			next.DpiSlots = append(next.DpiSlots, last)
		}
		if len(next.DpiSlots) > caps.DpiSlotMax {
			next.DpiSlots = next.DpiSlots[:caps.DpiSlotMax]
		}
	}
	if next.DpiSlotCount != nil {
		if *next.DpiSlotCount < 1 {
			*next.DpiSlotCount = 1
		}
		if caps.DpiSlotMax > 0 && *next.DpiSlotCount > caps.DpiSlotMax {
			*next.DpiSlotCount = caps.DpiSlotMax
		}
	}
	if next.CurrentDpiIndex != nil {
		if *next.CurrentDpiIndex < 0 {
			*next.CurrentDpiIndex = 0
		}
		if next.DpiSlotCount != nil && *next.CurrentDpiIndex >= *next.DpiSlotCount {
			*next.CurrentDpiIndex = *next.DpiSlotCount - 1
		}
	}
}

// dedup keeps only the last command per logical register, preserving the
// relative order of survivors. Gate and stream commands are never folded.
func dedup(t *Table, cmds []Command) []Command {
	key := func(c Command) string {
		if c.gate || c.ProfileStream {
			return ""
		}
		if t.DedupKey != nil {
			return t.DedupKey(c)
		}
		return fmt.Sprintf("%d/%d", c.ReportID, c.Opcode)
	}
	last := make(map[string]int, len(cmds))
	for i, c := range cmds {
		if k := key(c); k != "" {
			last[k] = i
		}
	}
	out := make([]Command, 0, len(cmds))
	for i, c := range cmds {
		if k := key(c); k != "" && last[k] != i {
			continue
		}
		out = append(out, c)
	}
	return out
}

func anySensitive(cmds []Command) bool {
	for _, c := range cmds {
		if c.Sensitive {
			return true
		}
	}
	return false
}

func sortedKeys(p config.Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
