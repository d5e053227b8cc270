package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/protocol"
)

// toyTable builds a minimal two-register table for planner-level tests.
func toyTable(gate *protocol.Gate) *protocol.Table {
	return &protocol.Table{
		Vendor: config.VendorA,
		Entries: []protocol.Entry{
			{
				Key: config.KeyPollingHz, Kind: protocol.Direct, Priority: 10,
				Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
					return protocol.WriteSpec{Opcode: 0x01, Data: []byte{byte(*c.Next.PollingHz / 1000)}}, nil
				},
			},
			{
				Key: config.KeyLodHeight, Kind: protocol.Direct, Priority: 20,
				Validate: func(c *protocol.Ctx) error {
					if *c.Next.LodHeight == "forbidden" {
						return cfgerror.BadParam(config.KeyLodHeight, *c.Next.LodHeight, "nope")
					}
					return nil
				},
				Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
					return protocol.WriteSpec{Opcode: 0x02, Data: []byte{0x01}, Sensitive: true}, nil
				},
			},
			{
				Key: config.KeyRippleControl, Kind: protocol.Virtual, Priority: 5,
				Plan: func(c *protocol.Ctx) ([]protocol.Command, error) {
					// Writes the polling register too; dedup must keep only
					// the later occurrence.
					return []protocol.Command{
						{ReportID: 0x05, Opcode: 0x01, Payload: []byte{0x01, 0xAA}},
						{ReportID: 0x05, Opcode: 0x03, Payload: []byte{0x03, 0x01}},
					}, nil
				},
			},
		},
		Pack: func(ws protocol.WriteSpec) protocol.Command {
			payload := append([]byte{ws.Opcode}, ws.Data...)
			return protocol.Command{ReportID: 0x05, Payload: payload, Opcode: ws.Opcode, Sensitive: ws.Sensitive, WaitMS: ws.WaitMS}
		},
		Gate: gate,
	}
}

func caps() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorA,
		PollingRates: []int{125, 250, 500, 1000},
		DpiSlotMax:   4,
		Keys: []string{
			config.KeyPollingHz, config.KeyLodHeight, config.KeyRippleControl,
			config.KeyDebounceLevel, config.KeyDebounceMS,
		},
	}
}

func prevState() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:    config.VendorA,
		PollingHz: config.Ptr(1000),
		LodHeight: config.Ptr("low"),
	}
}

func TestPlanRejectsUnknownKey(t *testing.T) {
	_, _, _, err := protocol.Plan(toyTable(nil), caps(), prevState(), config.Patch{"warpFactor": 9})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindFeatureUnsupported, cfgerror.KindOf(err))
}

func TestPlanAliasNormalization(t *testing.T) {
	_, next, cmds, err := protocol.Plan(toyTable(nil), caps(), prevState(), config.Patch{"polling_rate": 500})
	assert.NoError(t, err)
	assert.Equal(t, 500, *next.PollingHz)
	assert.Len(t, cmds, 1)
	assert.Equal(t, byte(0x01), cmds[0].Opcode)
}

func TestPlanValidationAbortsBeforeCommands(t *testing.T) {
	_, _, cmds, err := protocol.Plan(toyTable(nil), caps(), prevState(),
		config.Patch{config.KeyPollingHz: 500, config.KeyLodHeight: "forbidden"})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(err))
	assert.Nil(t, cmds)
}

func TestPlanPriorityOrder(t *testing.T) {
	_, _, cmds, err := protocol.Plan(toyTable(nil), caps(), prevState(),
		config.Patch{config.KeyLodHeight: "mid", config.KeyRippleControl: true, config.KeyPollingHz: 500})
	assert.NoError(t, err)
	// Virtual priority 5 runs first, then polling (10), then lod (20); the
	// virtual entry's polling write is superseded by the later one.
	opcodes := make([]byte, 0, len(cmds))
	for _, c := range cmds {
		opcodes = append(opcodes, c.Opcode)
	}
	assert.Equal(t, []byte{0x03, 0x01, 0x02}, opcodes)
}

func TestPlanDedupLastWriteWins(t *testing.T) {
	_, _, cmds, err := protocol.Plan(toyTable(nil), caps(), prevState(),
		config.Patch{config.KeyRippleControl: true, config.KeyPollingHz: 500})
	assert.NoError(t, err)
	var pollingWrites [][]byte
	for _, c := range cmds {
		if c.Opcode == 0x01 {
			pollingWrites = append(pollingWrites, c.Payload)
		}
	}
	assert.Len(t, pollingWrites, 1)
	// The later (planner-entry) value survives, not the virtual 0xAA write.
	assert.Equal(t, []byte{0x01, 0x00}, pollingWrites[0])
}

func TestPlanGateInjection(t *testing.T) {
	g := &protocol.Gate{ReportID: 0x09, Unlock: []byte{0x0E, 0x01}, Lock: []byte{0x0E, 0x00}}

	// A sensitive write gets bracketed.
	_, _, cmds, err := protocol.Plan(toyTable(g), caps(), prevState(), config.Patch{config.KeyLodHeight: "mid"})
	assert.NoError(t, err)
	assert.Len(t, cmds, 3)
	assert.True(t, cmds[0].IsGate())
	assert.Equal(t, []byte{0x0E, 0x01}, cmds[0].Payload)
	assert.True(t, cmds[2].IsGate())
	assert.Equal(t, []byte{0x0E, 0x00}, cmds[2].Payload)
	for _, c := range cmds[1 : len(cmds)-1] {
		assert.True(t, c.Sensitive)
	}

	// A non-sensitive write does not.
	_, _, cmds, err = protocol.Plan(toyTable(g), caps(), prevState(), config.Patch{config.KeyPollingHz: 500})
	assert.NoError(t, err)
	assert.Len(t, cmds, 1)
	assert.False(t, cmds[0].IsGate())
}

func TestPlanDerivesDebouncePair(t *testing.T) {
	table := toyTable(nil)
	table.Entries = append(table.Entries, protocol.Entry{
		Key: config.KeyDebounceLevel, Kind: protocol.Compound, Priority: 30,
		Triggers: []string{config.KeyDebounceMS},
		Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
			return protocol.WriteSpec{Opcode: 0x07, Data: []byte{byte(*c.Next.DebounceMS)}}, nil
		},
	})

	_, next, cmds, err := protocol.Plan(table, caps(), prevState(), config.Patch{config.KeyDebounceLevel: "high"})
	assert.NoError(t, err)
	assert.Equal(t, 10, *next.DebounceMS)
	assert.Equal(t, "high", *next.DebounceLevel)
	assert.Len(t, cmds, 1)
	assert.Equal(t, []byte{0x07, 0x0A}, cmds[0].Payload)

	_, next, _, err = protocol.Plan(table, caps(), prevState(), config.Patch{config.KeyDebounceMS: 2})
	assert.NoError(t, err)
	assert.Equal(t, "low", *next.DebounceLevel)
}

func TestPlanLeavesPrevUntouched(t *testing.T) {
	prev := prevState()
	_, next, _, err := protocol.Plan(toyTable(nil), caps(), prev, config.Patch{config.KeyPollingHz: 250})
	assert.NoError(t, err)
	assert.Equal(t, 1000, *prev.PollingHz)
	assert.Equal(t, 250, *next.PollingHz)
}
