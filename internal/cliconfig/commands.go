package cliconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	yaml "gopkg.in/yaml.v3"

	ilog "github.com/Nuitfanee/clicksync/internal/log"
	"github.com/Nuitfanee/clicksync/mouseapi"
	"github.com/Nuitfanee/clicksync/protocol"
)

// PlanCmd dry-runs a patch through a family planner without any device.
type PlanCmd struct {
	Vendor string `arg:"" help:"Family tag (a, b, c, d or e)"`
	Patch  string `arg:"" help:"Patch file (json, yaml or toml)" type:"existingfile"`
	State  bool   `help:"Also print the resulting state"`
}

func (c *PlanCmd) Run(logger *slog.Logger) error {
	proto, err := protocolFor(c.Vendor)
	if err != nil {
		return err
	}
	patch, err := LoadPatch(c.Patch)
	if err != nil {
		return err
	}
	next, cmds, err := proto.Plan(proto.DefaultConfig(), patch)
	if err != nil {
		return err
	}
	for i, cmd := range cmds {
		fmt.Printf("%2d  rid=0x%02x op=0x%02x wait=%dms sensitive=%-5t stream=%-5t  % x\n",
			i, cmd.ReportID, cmd.Opcode, cmd.WaitMS, cmd.Sensitive, cmd.ProfileStream, cmd.Payload)
	}
	logger.Info("planned", "vendor", proto.Tag(), "commands", len(cmds))
	if c.State {
		return dumpYAML(next)
	}
	return nil
}

// CapsCmd prints a family capability record.
type CapsCmd struct {
	Vendor string `arg:"" help:"Family tag (a, b, c, d or e)"`
}

func (c *CapsCmd) Run(logger *slog.Logger) error {
	proto, err := protocolFor(c.Vendor)
	if err != nil {
		return err
	}
	return dumpYAML(proto.Capabilities())
}

// ReplayCmd drives a patch through the full engine against a scripted
// device and prints the wire traffic.
type ReplayCmd struct {
	Vendor string `arg:"" help:"Family tag (a, b, c, d or e)"`
	Patch  string `arg:"" help:"Patch file (json, yaml or toml)" type:"existingfile"`
}

func (c *ReplayCmd) Run(logger *slog.Logger, raw ilog.RawLogger) error {
	proto, err := protocolFor(c.Vendor)
	if err != nil {
		return err
	}
	patch, err := LoadPatch(c.Patch)
	if err != nil {
		return err
	}
	dev := newReplayDevice(proto.Tag())
	api := mouseapi.New(dev, proto, protocol.DefaultTimings(), logger, raw)
	defer api.Dispose()

	ctx := context.Background()
	if err := api.Open(ctx); err != nil {
		return err
	}
	if err := api.Apply(ctx, patch); err != nil {
		return err
	}
	for i, s := range dev.SentReports() {
		kind := "output"
		if s.Feature {
			kind = "feature"
		}
		fmt.Printf("%2d  %s rid=0x%02x  % x\n", i, kind, s.ReportID, s.Data)
	}
	fmt.Println("---")
	return dumpYAML(api.CachedConfig())
}

func dumpYAML(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
