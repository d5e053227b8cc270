package transform

import (
	"strings"

	"github.com/Nuitfanee/clicksync/cfgerror"
)

// Function-key classes as carried in the funckey byte of a button mapping.
const (
	FuncMouse    byte = 0x01
	FuncKeyboard byte = 0x02
	FuncConsumer byte = 0x03
	FuncSystem   byte = 0x04
	FuncDisabled byte = 0x00
)

// Keyboard modifier bits, combined with a base usage on keyboard entries.
const (
	ModCtrl  byte = 0x01
	ModShift byte = 0x02
	ModAlt   byte = 0x04
	ModMeta  byte = 0x08
)

// ButtonAction is the decoded form of one button mapping.
type ButtonAction struct {
	FuncKey byte
	KeyCode byte
}

// funcLabels maps semantic labels onto wire actions. Mouse buttons, common
// keyboard usages, consumer controls, and system actions.
var funcLabels = map[string]ButtonAction{
	"disabled":     {FuncDisabled, 0x00},
	"left":         {FuncMouse, 0x01},
	"right":        {FuncMouse, 0x02},
	"middle":       {FuncMouse, 0x04},
	"back":         {FuncMouse, 0x08},
	"forward":      {FuncMouse, 0x10},
	"dpi_cycle":    {FuncMouse, 0x20},
	"dpi_up":       {FuncMouse, 0x40},
	"dpi_down":     {FuncMouse, 0x80},
	"scroll_up":    {FuncConsumer, 0x01},
	"scroll_down":  {FuncConsumer, 0x02},
	"volume_up":    {FuncConsumer, 0xE9},
	"volume_down":  {FuncConsumer, 0xEA},
	"mute":         {FuncConsumer, 0xE2},
	"play_pause":   {FuncConsumer, 0xCD},
	"next_track":   {FuncConsumer, 0xB5},
	"prev_track":   {FuncConsumer, 0xB6},
	"browser_home": {FuncSystem, 0x23},
	"calculator":   {FuncSystem, 0x92},
	"key_a":        {FuncKeyboard, 0x04},
	"key_b":        {FuncKeyboard, 0x05},
	"key_c":        {FuncKeyboard, 0x06},
	"key_d":        {FuncKeyboard, 0x07},
	"key_e":        {FuncKeyboard, 0x08},
	"key_f":        {FuncKeyboard, 0x09},
	"key_enter":    {FuncKeyboard, 0x28},
	"key_escape":   {FuncKeyboard, 0x29},
	"key_space":    {FuncKeyboard, 0x2C},
	"key_tab":      {FuncKeyboard, 0x2B},
	"key_f1":       {FuncKeyboard, 0x3A},
	"key_f2":       {FuncKeyboard, 0x3B},
	"key_f3":       {FuncKeyboard, 0x3C},
	"key_f4":       {FuncKeyboard, 0x3D},
	"key_f5":       {FuncKeyboard, 0x3E},
}

var modLabels = map[string]byte{
	"ctrl":  ModCtrl,
	"shift": ModShift,
	"alt":   ModAlt,
	"meta":  ModMeta,
}

// FuncFromLabel resolves a semantic label (e.g. "middle", "ctrl+key_c",
// "volume_up") into its wire action. Modifier prefixes are only valid on
// keyboard entries; a modifier-only label maps to the keyboard class with a
// zero base usage.
func FuncFromLabel(label string) (ButtonAction, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(label)), "+")
	var mods byte
	base := ""
	for _, p := range parts {
		if m, ok := modLabels[p]; ok {
			mods |= m
			continue
		}
		if base != "" {
			return ButtonAction{}, cfgerror.BadParam("buttonMapping", label, "multiple base actions")
		}
		base = p
	}
	if base == "" {
		if mods == 0 {
			return ButtonAction{}, cfgerror.BadParam("buttonMapping", label, "empty label")
		}
		return ButtonAction{FuncKey: FuncKeyboard, KeyCode: mods << 4}, nil
	}
	act, ok := funcLabels[base]
	if !ok {
		return ButtonAction{}, cfgerror.FeatureUnsupported("buttonMapping", label)
	}
	if mods != 0 {
		if act.FuncKey != FuncKeyboard {
			return ButtonAction{}, cfgerror.BadParam("buttonMapping", label, "modifiers require a keyboard action")
		}
		act.KeyCode |= mods << 4
	}
	return act, nil
}

// FuncLabel renders a wire action back into its semantic label. Unknown
// actions come back as an empty string with ok=false.
func FuncLabel(act ButtonAction) (string, bool) {
	mods := byte(0)
	lookup := act
	if act.FuncKey == FuncKeyboard {
		mods = act.KeyCode >> 4 & 0x0F
		lookup.KeyCode = act.KeyCode & 0x0F
		// Keyboard usages above 0x0F carry no packed modifiers.
		if _, ok := reverseLabel(act); ok {
			mods = 0
			lookup = act
		}
	}
	base, ok := reverseLabel(lookup)
	if !ok {
		return "", false
	}
	if mods == 0 {
		return base, true
	}
	var parts []string
	for _, m := range []struct {
		bit  byte
		name string
	}{{ModCtrl, "ctrl"}, {ModShift, "shift"}, {ModAlt, "alt"}, {ModMeta, "meta"}} {
		if mods&m.bit != 0 {
			parts = append(parts, m.name)
		}
	}
	parts = append(parts, base)
	return strings.Join(parts, "+"), true
}

func reverseLabel(act ButtonAction) (string, bool) {
	for l, a := range funcLabels {
		if a == act {
			return l, true
		}
	}
	return "", false
}
