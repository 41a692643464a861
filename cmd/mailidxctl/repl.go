package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/maildeck/mailidx/mailindex"
)

// REPL is an interactive shell over an already-open [mailindex.Index],
// grounded on the teacher's sloty REPL: a liner-backed prompt dispatching
// fixed-name commands to small handler functions.
type REPL struct {
	idx   *mailindex.Index
	liner *liner.State
}

func runREPL(idx *mailindex.Index) error {
	r := &REPL{idx: idx}
	return r.Run()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".mailidxctl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("mailidxctl - interactive mailbox index shell")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("mailidx> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "lock":
			r.cmdLock(args)

		case "unlock":
			r.cmdUnlock()

		case "stat":
			r.cmdStat()

		case "append":
			r.cmdAppend(args)

		case "expunge":
			r.cmdExpunge(args)

		case "setflags":
			r.cmdSetFlags(args)

		case "lookup":
			r.cmdLookup(args)

		case "seq":
			r.cmdSeq(args)

		case "fsck":
			r.cmdFsck()

		default:
			fmt.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = r.liner.WriteHistory(f)
}

func (r *REPL) completer(line string) []string {
	cmds := []string{"help", "lock", "unlock", "stat", "append", "expunge", "setflags", "lookup", "seq", "fsck", "exit"}

	var matches []string

	for _, c := range cmds {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  lock <shared|exclusive>    Acquire a lock on the index
  unlock                     Release the current lock
  stat                       Show header counters
  append [flags]             Append a record (flags: comma-separated)
  expunge <seq>              Expunge the record at sequence seq
  setflags <seq> <flags>     Replace a record's flags
  lookup <seq>               Print the record at sequence seq
  seq <uid>                  Look up a record by uid range [uid,uid]
  fsck                       Force a consistency sweep on next open
  help                       Show this help
  exit / quit / q            Exit`)
}

func (r *REPL) cmdLock(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: lock <shared|exclusive>")
		return
	}

	var want mailindex.LockState

	switch strings.ToLower(args[0]) {
	case "shared", "s":
		want = mailindex.Shared
	case "exclusive", "x":
		want = mailindex.Exclusive
	default:
		fmt.Println("lock state must be 'shared' or 'exclusive'")
		return
	}

	if err := r.idx.SetLock(want); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdUnlock() {
	if err := r.idx.SetLock(mailindex.Unlock); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdStat() {
	stats, err := r.idx.Stat()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("messages=%d seen=%d deleted=%d next_uid=%d uid_validity=%d\n",
		stats.MessagesCount, stats.SeenMessagesCount, stats.DeletedMessagesCount, stats.NextUID, stats.UIDValidity)
}

func (r *REPL) cmdAppend(args []string) {
	flagNames := ""
	if len(args) > 0 {
		flagNames = args[0]
	}

	rec, err := r.idx.Append(parseFlagNames(flagNames))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("appended uid=%d seq=%d\n", rec.UID, rec.Seq)
}

func (r *REPL) cmdExpunge(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: expunge <seq>")
		return
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Println("invalid sequence number:", err)
		return
	}

	rec, ok, err := r.idx.LookupBySeq(uint32(seq))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}

	if err := r.idx.Expunge(rec, true); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdSetFlags(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: setflags <seq> <flags>")
		return
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Println("invalid sequence number:", err)
		return
	}

	rec, ok, err := r.idx.LookupBySeq(uint32(seq))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}

	if err := r.idx.SetFlags(rec, parseFlagNames(args[1]), true); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdLookup(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: lookup <seq>")
		return
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Println("invalid sequence number:", err)
		return
	}

	rec, ok, err := r.idx.LookupBySeq(uint32(seq))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}

	fmt.Printf("uid=%d seq=%d flags=%s\n", rec.UID, rec.Seq, formatFlags(rec.MsgFlags))
}

func (r *REPL) cmdSeq(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: seq <uid>")
		return
	}

	uid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Println("invalid uid:", err)
		return
	}

	rec, ok, err := r.idx.LookupUIDRange(uint32(uid), uint32(uid))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}

	fmt.Printf("seq=%d flags=%s\n", rec.Seq, formatFlags(rec.MsgFlags))
}

func (r *REPL) cmdFsck() {
	if err := r.idx.SetFsckFlag(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok (FSCK flag set; the sweep runs on next reopen)")
}
