package flags

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/ctagard/godot-bridge/pkg/types"
)

// ModeFlag is a pflag.Value holding an execution mode
type ModeFlag struct {
	value *types.ExecutionMode
}

func NewModeFlag(target *types.ExecutionMode) *ModeFlag {
	return &ModeFlag{value: target}
}

// Set implements pflag.Value.
func (m *ModeFlag) Set(s string) error {
	mode, err := types.ParseExecutionMode(s)
	if err != nil {
		return err
	}
	*m.value = mode
	return nil
}

// String implements pflag.Value.
func (m *ModeFlag) String() string {
	if m == nil || m.value == nil {
		return ""
	}
	return string(*m.value)
}

// Type implements pflag.Value.
func (m *ModeFlag) Type() string {
	return "mode"
}

// Usage lists the accepted values
func (m *ModeFlag) Usage() string {
	modes := types.ExecutionModes()
	names := make([]string, len(modes))
	for i, mode := range modes {
		names[i] = string(mode)
	}
	return strings.Join(names, ", ")
}

var _ pflag.Value = &ModeFlag{}
