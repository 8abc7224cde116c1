package main

import (
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"forge/internal/element"
)

// showLine is the per-element value a --format template renders against.
type showLine struct {
	ID   string
	Kind string
	Key  string
}

var (
	showDepsMode string
	showFormat   string
)

// showCmd prints the dependency graph and each element's resolved cache
// keys without running any jobs.
var showCmd = &cobra.Command{
	Use:   "show <target>",
	Short: "Print a target's dependency graph and element states",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showDepsMode, "deps", "all", "dependency scope to print: all, build, run")
	showCmd.Flags().StringVar(&showFormat, "format", "{{.ID}} ({{.Kind}}) {{.Key}}", "Go template applied per element line")
}

func runShow(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(projectFile())
	if err != nil {
		return err
	}
	sess, err := NewSession(cfg, newEmptyRegistry(), graph)
	if err != nil {
		return err
	}
	defer sess.Close()

	scope := element.ScopeAll
	switch showDepsMode {
	case "build":
		scope = element.ScopeBuild
	case "run":
		scope = element.ScopeRun
	case "all":
		scope = element.ScopeAll
	default:
		return fmt.Errorf("show: unknown --deps mode %q", showDepsMode)
	}

	elements, err := graph.Traverse(args[0], scope, true)
	if err != nil {
		return err
	}

	tpl, err := template.New("show").Parse(showFormat)
	if err != nil {
		return fmt.Errorf("show: parse --format: %w", err)
	}

	for _, el := range elements {
		key := "<unresolved>"
		if k, ok := sess.Key(el.ID); ok {
			key = string(k)
		}
		if err := tpl.Execute(os.Stdout, showLine{ID: el.ID, Kind: el.Kind, Key: key}); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}
