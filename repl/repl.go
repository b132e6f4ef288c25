// Package repl is the interactive inspector: a liner-backed console
// for poking at compiled functions — block lists, dominator tree,
// live sets, coloring. Dispatch-table command matching with minimum
// prefixes, the same shape as the teacher's operator console.
package repl

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/nc-labs/ssabe/ir"
)

type cmd struct {
	name    string // command name
	min     int    // minimum match size
	help    string
	process func(*session, []string) (bool, error)
}

var cmdList []cmd

func init() {
	cmdList = []cmd{
		{name: "functions", min: 1, help: "list loaded functions", process: functions},
		{name: "select", min: 3, help: "select <name>: switch current function", process: selectFn},
		{name: "blocks", min: 1, help: "print the current function's block graph", process: blocks},
		{name: "dom", min: 3, help: "print the dominator tree", process: domTree},
		{name: "live", min: 1, help: "live <bb>: print a block's live-in/out sets", process: live},
		{name: "colors", min: 1, help: "print every var's assigned color", process: colors},
		{name: "dump", min: 2, help: "print the instruction stream", process: dump},
		{name: "help", min: 1, help: "this list", process: help},
		{name: "quit", min: 1, help: "leave the inspector", process: quit},
	}
}

type session struct {
	fns []*ir.Function
	cur *ir.Function
}

// Run reads commands until quit or EOF.
func Run(fns []*ir.Function) {
	s := &session{fns: fns}
	if len(fns) > 0 {
		s.cur = fns[0]
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		var out []string
		for _, c := range cmdList {
			if strings.HasPrefix(c.name, l) {
				out = append(out, c.name)
			}
		}
		return out
	})

	for {
		input, err := line.Prompt("ssabe> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			return
		}
		line.AppendHistory(input)
		done, err := process(s, input)
		if err != nil {
			fmt.Println("Error: " + err.Error())
		}
		if done {
			return
		}
	}
}

func process(s *session, input string) (bool, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, nil
	}
	word := strings.ToLower(fields[0])

	var matches []cmd
	for _, c := range cmdList {
		if len(word) >= c.min && strings.HasPrefix(c.name, word) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return false, errors.New("command not found: " + word)
	}
	if len(matches) > 1 {
		return false, errors.New("unique command not found: " + word)
	}
	return matches[0].process(s, fields[1:])
}

func needFunction(s *session) error {
	if s.cur == nil {
		return errors.New("no function selected")
	}
	return nil
}

func functions(s *session, _ []string) (bool, error) {
	for _, f := range s.fns {
		marker := " "
		if f == s.cur {
			marker = "*"
		}
		fmt.Printf("%s %s (%d blocks)\n", marker, f.Name, len(f.Blocks))
	}
	return false, nil
}

func selectFn(s *session, args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("select needs a function name")
	}
	for _, f := range s.fns {
		if f.Name == args[0] {
			s.cur = f
			return false, nil
		}
	}
	return false, errors.New("no function named " + args[0])
}

func blocks(s *session, _ []string) (bool, error) {
	if err := needFunction(s); err != nil {
		return false, err
	}
	for _, b := range s.cur.Blocks {
		fmt.Printf("bb%d: preds=%s succs=%s\n", b.ID, blockIDs(b.Preds), blockIDs(b.Succs))
	}
	return false, nil
}

func domTree(s *session, _ []string) (bool, error) {
	if err := needFunction(s); err != nil {
		return false, err
	}
	var walk func(b *ir.Block, depth int)
	walk = func(b *ir.Block, depth int) {
		fmt.Printf("%sbb%d\n", strings.Repeat("  ", depth), b.ID)
		for _, c := range b.DomChildren {
			walk(c, depth+1)
		}
	}
	if s.cur.Entry != nil {
		walk(s.cur.Entry, 0)
	}
	return false, nil
}

func live(s *session, args []string) (bool, error) {
	if err := needFunction(s); err != nil {
		return false, err
	}
	if len(args) != 1 {
		return false, errors.New("live needs a block number")
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "bb"))
	if err != nil {
		return false, errors.New("bad block number " + args[0])
	}
	for _, b := range s.cur.Blocks {
		if b.ID != id {
			continue
		}
		fmt.Printf("live-in:  %s\n", varSet(b.LiveIn))
		fmt.Printf("live-out: %s\n", varSet(b.LiveOut))
		return false, nil
	}
	return false, errors.New("no block " + args[0])
}

func colors(s *session, _ []string) (bool, error) {
	if err := needFunction(s); err != nil {
		return false, err
	}
	for _, v := range s.cur.Vars() {
		if v.Color == ir.NotColored {
			continue
		}
		kind := "reg"
		if v.IsSpilled {
			kind = "slot"
		}
		if v.Color == ir.DontColor {
			kind = "none"
		}
		fmt.Printf("%s\t%s\t%s %d\n", ir.VarString(v), v.Typ, kind, v.Color)
	}
	return false, nil
}

func dump(s *session, _ []string) (bool, error) {
	if err := needFunction(s); err != nil {
		return false, err
	}
	fmt.Print(s.cur.Dump())
	return false, nil
}

func help(_ *session, _ []string) (bool, error) {
	for _, c := range cmdList {
		fmt.Printf("%-10s %s\n", c.name, c.help)
	}
	return false, nil
}

func quit(_ *session, _ []string) (bool, error) { return true, nil }

func blockIDs(bs []*ir.Block) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprintf("bb%d", b.ID)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func varSet(set map[*ir.Var]struct{}) string {
	var parts []string
	for v := range set {
		parts = append(parts, ir.VarString(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
