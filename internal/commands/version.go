package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/godot-bridge/internal/version"
)

var checkUpdates bool

func NewVersionCommand() (*cobra.Command, error) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints the version and optionally checks for a newer release",
		RunE:  printVersion,
		Args:  cobra.NoArgs,
	}
	versionCmd.Flags().BoolVar(&checkUpdates, "check-updates", false, "Query the latest published release")
	return versionCmd, nil
}

func printVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "godot-bridge v%s\n", version.Version)
	if !checkUpdates {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	info, err := (&version.Checker{}).Check(ctx)
	if err != nil {
		return err
	}
	if msg := info.UpdateMessage(); msg != "" {
		fmt.Fprintln(out, msg)
	} else {
		fmt.Fprintln(out, "You are running the latest release")
	}
	return nil
}
