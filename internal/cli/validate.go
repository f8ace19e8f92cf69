package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientStory/internal/story"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate <project.json>...",
		Short: "Check project files for authoring errors",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		g, err := story.Load(path)
		if err == nil {
			fmt.Fprintf(out, "%s: ok (%q, %d nodes, start %s)\n", path, g.Title, g.Len(), g.Start().ID)
			continue
		}
		failed++
		var mg *story.MalformedGraphError
		if !errors.As(err, &mg) {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(mg.Problems))
		for _, p := range mg.Problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d project(s) invalid", failed, len(args))
	}
	return nil
}
