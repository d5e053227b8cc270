package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/Nuitfanee/clicksync/config"
)

// LoadPatch reads a patch file (json, yaml or toml by extension) into a
// semantic patch, converting structured slot arguments to their typed forms.
func LoadPatch(path string) (config.Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	switch filepath.Ext(path) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported patch format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := config.Patch{}
	for k, v := range raw {
		p[k] = coerceValue(config.CanonicalKey(k), v)
	}
	return p, nil
}

// coerceValue rebuilds the typed argument structs a file cannot express
// directly.
func coerceValue(key string, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	switch key {
	case config.KeyDpiSlot:
		arg := config.DpiSlotArg{}
		if n, ok := config.AsInt(m["slot"]); ok {
			arg.Slot = n
		}
		if n, ok := config.AsInt(m["dpi"]); ok {
			arg.Dpi = n
		}
		if n, ok := config.AsInt(m["dpiY"]); ok {
			arg.DpiY = n
		}
		if b, ok := config.AsBool(m["select"]); ok {
			arg.Select = b
		}
		return arg
	case config.KeyButtonMapping:
		arg := config.ButtonMappingArg{}
		if n, ok := config.AsInt(m["slot"]); ok {
			arg.Slot = n
		}
		if s, ok := m["label"].(string); ok {
			arg.Label = s
		}
		if n, ok := config.AsInt(m["funckey"]); ok {
			arg.FuncKey = byte(n)
		}
		if n, ok := config.AsInt(m["keycode"]); ok {
			arg.KeyCode = byte(n)
		}
		return arg
	}
	return v
}
