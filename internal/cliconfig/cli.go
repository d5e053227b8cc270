// Package cliconfig defines the clicksync CLI grammar and its commands.
package cliconfig

import (
	"fmt"
	"strings"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/mouseapi"
	"github.com/Nuitfanee/clicksync/registry"
)

// CLI is the root kong grammar.
type CLI struct {
	Log struct {
		Level string `help:"Log level (trace, debug, info, warn, error)" default:"info"`
		File  string `help:"Log file path (defaults to stdout/stderr)"`
	} `embed:"" prefix:"log-"`
	Config string `help:"Path to a config file (json, yaml or toml)"`

	Plan   PlanCmd   `cmd:"" help:"Dry-run a patch through a family planner and dump the command sequence"`
	Caps   CapsCmd   `cmd:"" help:"Print a family's capability record"`
	Replay ReplayCmd `cmd:"" help:"Drive a patch through the full engine against a scripted device"`
}

// protocolFor resolves a family tag letter to its protocol binding.
func protocolFor(vendor string) (mouseapi.Protocol, error) {
	tag := config.VendorTag(strings.ToUpper(strings.TrimSpace(vendor)))
	reg := registry.ByTag(tag)
	if reg == nil {
		return nil, fmt.Errorf("unknown vendor family %q (expected a, b, c, d or e)", vendor)
	}
	return reg.Factory(), nil
}
