package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/storage"
	"github.com/AaronLay10/SentientStory/internal/story"
)

func init() {
	savesCmd := &cobra.Command{
		Use:   "saves",
		Short: "Manage save slots of a story",
	}

	list := &cobra.Command{
		Use:   "list <project.json>",
		Short: "List save slots",
		Args:  cobra.ExactArgs(1),
		RunE:  runSavesList,
	}
	list.Flags().Bool("json", false, "Print JSON")

	rm := &cobra.Command{
		Use:   "rm <project.json> <slot>",
		Short: "Delete a save slot",
		Args:  cobra.ExactArgs(2),
		RunE:  runSavesRm,
	}

	savesCmd.AddCommand(list, rm)
	RootCmd.AddCommand(savesCmd)
}

// withSaves opens the save store of the story at path.
func withSaves(path string, fn func(*save.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := story.Load(path)
	if err != nil {
		return err
	}
	m, closeSaves, err := openSaves(cfg, g.Title, nil)
	if err != nil {
		return err
	}
	defer closeSaves()
	return fn(m)
}

func runSavesList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withSaves(args[0], func(m *save.Manager) error {
		infos, err := m.List(commandContext(cmd))
		if err != nil {
			return err
		}
		if asJSON {
			if infos == nil {
				infos = []storage.SlotInfo{}
			}
			b, _ := json.MarshalIndent(infos, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		printSlots(cmd.OutOrStdout(), infos)
		return nil
	})
}

func runSavesRm(cmd *cobra.Command, args []string) error {
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[1])
	}
	return withSaves(args[0], func(m *save.Manager) error {
		if err := m.Delete(commandContext(cmd), slot); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted slot %d\n", slot)
		return nil
	})
}

func printSlots(out io.Writer, infos []storage.SlotInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(out, "no saves")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tLABEL\tNODE\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", info.Slot, info.Label, info.NodeID, info.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}
