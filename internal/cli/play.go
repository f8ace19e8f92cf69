package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientStory/internal/engine"
	"github.com/AaronLay10/SentientStory/internal/save"
	"github.com/AaronLay10/SentientStory/internal/story"
)

const playHelp = `commands:
  <enter>          continue
  <n>              pick option n
  save <slot> [label]
  load <slot>
  saves            list save slots
  history          show what happened so far
  vars             show variables
  new              start over
  quit`

func init() {
	cmd := &cobra.Command{
		Use:   "play <project.json>",
		Short: "Play a story in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlay,
	}
	cmd.Flags().IntP("slot", "s", -1, "Resume from this save slot")
	RootCmd.AddCommand(cmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	slot, _ := cmd.Flags().GetInt("slot")
	ctx := commandContext(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := story.Load(args[0])
	if err != nil {
		return err
	}

	p := &player{
		ctx:    ctx,
		engine: engine.New(g, engineOptions(cfg)...),
		in:     bufio.NewScanner(cmd.InOrStdin()),
		out:    cmd.OutOrStdout(),
	}

	saves, closeSaves, err := openSaves(cfg, g.Title, nil)
	switch {
	case err == nil:
		defer closeSaves()
		p.saves = saves
	case slot >= 0:
		return err
	default:
		fmt.Fprintf(p.out, "saves unavailable: %v\n", err)
	}

	fmt.Fprintf(p.out, "== %s ==\n", g.Title)
	if slot >= 0 {
		if _, err := p.saves.Restore(ctx, p.engine, slot); err != nil {
			return fmt.Errorf("resume from slot %d: %w", slot, err)
		}
		p.render()
	} else {
		p.step(p.engine.Advance())
	}
	return p.run()
}

// player is the terminal front-end for one session.
type player struct {
	ctx    context.Context
	engine *engine.Engine
	saves  *save.Manager
	in     *bufio.Scanner
	out    io.Writer
}

var errQuit = errors.New("quit")

func (p *player) run() error {
	for {
		fmt.Fprint(p.out, "> ")
		if !p.in.Scan() {
			break
		}
		err := p.handle(strings.Fields(p.in.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(p.out, "! %v\n", err)
		}
	}
	return p.in.Err()
}

func (p *player) handle(words []string) error {
	if len(words) == 0 {
		p.step(p.engine.Advance())
		return nil
	}
	if n, err := strconv.Atoi(words[0]); err == nil {
		return p.pick(n)
	}

	switch words[0] {
	case "n", "next":
		p.step(p.engine.Advance())
	case "new":
		p.engine.NewGame()
		p.step(p.engine.Advance())
	case "save":
		return p.save(words[1:])
	case "load":
		return p.load(words[1:])
	case "saves":
		return p.listSaves()
	case "history":
		p.history()
	case "vars":
		p.vars()
	case "help", "?":
		fmt.Fprintln(p.out, playHelp)
	case "quit", "q", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", words[0])
	}
	return nil
}

// pick chooses the n-th visible option, counting from 1.
func (p *player) pick(n int) error {
	d := p.engine.Display()
	if d.Choice == nil {
		return errors.New("no choice pending")
	}
	if n < 1 || n > len(d.Choice.Options) {
		return fmt.Errorf("pick 1-%d", len(d.Choice.Options))
	}
	p.step(p.engine.Choose(d.Choice.Options[n-1].Index))
	return nil
}

func (p *player) step(_ engine.State, err error) {
	if err != nil {
		var halted *engine.EngineHaltedError
		if !errors.As(err, &halted) || halted.Diagnostic != "" {
			fmt.Fprintf(p.out, "! %v\n", err)
		}
	}
	p.render()
}

func (p *player) render() {
	d := p.engine.Display()
	switch d.State {
	case engine.AwaitingAdvance:
		if d.Text != nil {
			p.line(d.Text)
		}
	case engine.AwaitingChoice:
		if d.Choice.Caption != nil {
			p.line(d.Choice.Caption)
		}
		if d.Choice.Question != "" {
			fmt.Fprintln(p.out, d.Choice.Question)
		}
		for i, o := range d.Choice.Options {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, o.Label)
		}
	case engine.Halted:
		if d.Diagnostic != "" {
			fmt.Fprintf(p.out, "[story halted at %s: %s]\n", d.NodeID, d.Diagnostic)
		} else {
			fmt.Fprintln(p.out, "[the end]")
		}
	}
}

func (p *player) line(t *engine.TextView) {
	if t.Speaker != "" {
		fmt.Fprintf(p.out, "%s: %s\n", t.Speaker, t.Content)
		return
	}
	fmt.Fprintln(p.out, t.Content)
}

func (p *player) save(args []string) error {
	if p.saves == nil {
		return errors.New("saves unavailable")
	}
	if len(args) == 0 {
		return errors.New("usage: save <slot> [label]")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[0])
	}
	snap, err := p.saves.Save(p.ctx, p.engine, slot, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "saved to slot %d\n", snap.Slot)
	return nil
}

func (p *player) load(args []string) error {
	if p.saves == nil {
		return errors.New("saves unavailable")
	}
	if len(args) != 1 {
		return errors.New("usage: load <slot>")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[0])
	}
	if _, err := p.saves.Restore(p.ctx, p.engine, slot); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "loaded slot %d\n", slot)
	p.render()
	return nil
}

func (p *player) listSaves() error {
	if p.saves == nil {
		return errors.New("saves unavailable")
	}
	infos, err := p.saves.List(p.ctx)
	if err != nil {
		return err
	}
	printSlots(p.out, infos)
	return nil
}

func (p *player) history() {
	for _, h := range p.engine.History() {
		switch {
		case h.Kind == engine.EntryChoice:
			fmt.Fprintf(p.out, "  -> %s\n", h.Text)
		case h.Speaker != "":
			fmt.Fprintf(p.out, "  %s: %s\n", h.Speaker, h.Text)
		default:
			fmt.Fprintf(p.out, "  %s\n", h.Text)
		}
	}
}

func (p *player) vars() {
	vars := p.engine.Variables()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(p.out, "  %s = %s\n", name, vars[name])
	}
}
