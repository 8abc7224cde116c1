package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"forge/internal/workspace"
)

// workspaceCmd manages developer overlays: local checkouts substituted
// for an element's normal sourced content.
var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage developer overlays on element sources",
}

var workspaceOpenCmd = &cobra.Command{
	Use:   "open <element> <dir>",
	Short: "Open a local directory as an element's source overlay",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceOpen,
}

var workspaceCloseCmd = &cobra.Command{
	Use:   "close <element>",
	Short: "Close an element's open overlay",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceClose,
}

var workspaceResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Close every open overlay",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceReset,
}

func init() {
	workspaceCmd.AddCommand(workspaceOpenCmd, workspaceCloseCmd, workspaceResetCmd)
}

func openWorkspaceManager() (*workspace.Manager, error) {
	path := filepath.Join(resolvedWorkspaceDir(), "workspaces.yaml")
	return workspace.NewManager(path, func(elementID string) {
		logger.Sugar().Infof("overlay for %s changed", elementID)
	})
}

func runWorkspaceOpen(cmd *cobra.Command, args []string) error {
	mgr, err := openWorkspaceManager()
	if err != nil {
		return err
	}
	if err := mgr.Open(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s: opened overlay at %s\n", args[0], args[1])
	return nil
}

func runWorkspaceClose(cmd *cobra.Command, args []string) error {
	mgr, err := openWorkspaceManager()
	if err != nil {
		return err
	}
	if err := mgr.Close(args[0]); err != nil {
		return err
	}
	fmt.Printf("%s: overlay closed\n", args[0])
	return nil
}

func runWorkspaceReset(cmd *cobra.Command, args []string) error {
	mgr, err := openWorkspaceManager()
	if err != nil {
		return err
	}
	if err := mgr.Reset(); err != nil {
		return err
	}
	fmt.Println("all overlays closed")
	return nil
}
