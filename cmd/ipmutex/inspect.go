package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/ipmutex/pkg/ipmutex"
)

var (
	inspectCmd = &cobra.Command{
		Use:   "inspect key",
		Short: "Print the lock word of a shared memory object without attaching",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	removeCmd = &cobra.Command{
		Use:   "remove key",
		Short: "Remove a shared memory object left behind by a crashed owner",
		Long: `remove deletes the object for key from the namespace. Processes still
attached keep working on their mapping, but new processes will create a
fresh, unrelated lock. Use it only when the owner is gone.`,
		Args: cobra.ExactArgs(1),
		RunE: runRemove,
	}
)

func runInspect(cmd *cobra.Command, args []string) error {
	config, err := lockConfig()
	if err != nil {
		return err
	}
	info, err := ipmutex.Inspect(args[0], config)
	if err != nil && !errors.Is(err, ipmutex.ErrSegmentNotReady) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), info.String())
	return err
}

func runRemove(cmd *cobra.Command, args []string) error {
	config, err := lockConfig()
	if err != nil {
		return err
	}
	if err := ipmutex.Remove(args[0], config); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}
