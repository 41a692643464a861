// mailidxctl operates a mailidx mailbox directory from the command line.
//
// Usage:
//
//	mailidxctl [--mailbox-dir DIR] <command> [args...]
//
// Commands:
//
//	stat                       Print header counters
//	append [flags]             Append a new message record
//	expunge <seq>              Expunge the record at sequence seq
//	setflags <seq> <flags>     Replace a record's flags (comma-separated names)
//	lookup <seq>               Print the record at sequence seq
//	fsck                       Force a consistency sweep on next open
//	inspect                    Start an interactive REPL
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/maildeck/mailidx/mailindex"
	"github.com/maildeck/mailidx/pkg/fs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("mailidxctl", pflag.ContinueOnError)

	mailboxDir := flags.String("mailbox-dir", "", "mailbox directory (overrides config)")
	configPath := flags.StringP("config", "c", "", "path to an explicit config file")
	noUpdateRecent := flags.Bool("no-update-recent", false, "do not advance the recent watermark on open")

	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mailidxctl [flags] <command> [args...]")
		fmt.Fprintln(os.Stderr, "Commands: stat, append, expunge, setflags, lookup, fsck, inspect")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	cliOverrides := Config{MailboxDir: *mailboxDir, UpdateRecent: !*noUpdateRecent}

	cfg, _, err := LoadConfig(workDir, *configPath, cliOverrides, *mailboxDir != "", flags.Changed("no-update-recent"), os.Environ())
	if err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	cmd, cmdArgs := rest[0], rest[1:]

	filesys := fs.NewReal()

	idx, err := mailindex.OpenOrCreate(filesys, cfg.MailboxDir, cfg.UpdateRecent, mailindex.DefaultFactory(filesys))
	if err != nil {
		return fmt.Errorf("open mailbox %s: %w", cfg.MailboxDir, err)
	}
	defer idx.Close()

	switch cmd {
	case "stat":
		return cmdStat(idx)
	case "append":
		return cmdAppend(idx, cmdArgs)
	case "expunge":
		return cmdExpunge(idx, cmdArgs)
	case "setflags":
		return cmdSetFlags(idx, cmdArgs)
	case "lookup":
		return cmdLookup(idx, cmdArgs)
	case "fsck":
		return cmdFsck(idx)
	case "inspect":
		return runREPL(idx)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdStat(idx *mailindex.Index) error {
	if err := idx.SetLock(mailindex.Shared); err != nil {
		return err
	}
	defer idx.SetLock(mailindex.Unlock)

	fmt.Printf("messages: %d\n", idx.MessagesCount())
	fmt.Printf("seen: %d\n", idx.SeenMessagesCount())
	fmt.Printf("deleted: %d\n", idx.DeletedMessagesCount())
	fmt.Printf("next_uid: %d\n", idx.NextUID())

	return nil
}

func cmdAppend(idx *mailindex.Index, args []string) error {
	flagNames := ""
	if len(args) > 0 {
		flagNames = args[0]
	}

	if err := idx.SetLock(mailindex.Exclusive); err != nil {
		return err
	}
	defer idx.SetLock(mailindex.Unlock)

	rec, err := idx.Append(parseFlagNames(flagNames))
	if err != nil {
		return err
	}

	fmt.Printf("appended uid=%d seq=%d\n", rec.UID, rec.Seq)

	return nil
}

func cmdExpunge(idx *mailindex.Index, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: expunge <seq>")
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sequence number: %w", err)
	}

	if err := idx.SetLock(mailindex.Exclusive); err != nil {
		return err
	}
	defer idx.SetLock(mailindex.Unlock)

	rec, ok, err := idx.LookupBySeq(uint32(seq))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no record at sequence %d", seq)
	}

	return idx.Expunge(rec, true)
}

func cmdSetFlags(idx *mailindex.Index, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setflags <seq> <flag,flag,...>")
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sequence number: %w", err)
	}

	if err := idx.SetLock(mailindex.Exclusive); err != nil {
		return err
	}
	defer idx.SetLock(mailindex.Unlock)

	rec, ok, err := idx.LookupBySeq(uint32(seq))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no record at sequence %d", seq)
	}

	return idx.SetFlags(rec, parseFlagNames(args[1]), true)
}

func cmdLookup(idx *mailindex.Index, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lookup <seq>")
	}

	seq, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sequence number: %w", err)
	}

	if err := idx.SetLock(mailindex.Shared); err != nil {
		return err
	}
	defer idx.SetLock(mailindex.Unlock)

	rec, ok, err := idx.LookupBySeq(uint32(seq))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("not found")
		return nil
	}

	fmt.Printf("uid=%d seq=%d flags=%s\n", rec.UID, rec.Seq, formatFlags(rec.MsgFlags))

	return nil
}

func cmdFsck(idx *mailindex.Index) error {
	if err := idx.SetLock(mailindex.Exclusive); err != nil {
		return err
	}

	if err := idx.SetFsckFlag(); err != nil {
		_ = idx.SetLock(mailindex.Unlock)
		return err
	}

	return idx.SetLock(mailindex.Unlock)
}

func parseFlagNames(s string) uint32 {
	var flags uint32

	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "seen":
			flags |= mailindex.MsgSeen
		case "deleted":
			flags |= mailindex.MsgDeleted
		case "answered":
			flags |= mailindex.MsgAnswered
		case "flagged":
			flags |= mailindex.MsgFlagged
		case "draft":
			flags |= mailindex.MsgDraft
		}
	}

	return flags
}

func formatFlags(flags uint32) string {
	var names []string

	if flags&mailindex.MsgSeen != 0 {
		names = append(names, "seen")
	}
	if flags&mailindex.MsgDeleted != 0 {
		names = append(names, "deleted")
	}
	if flags&mailindex.MsgAnswered != 0 {
		names = append(names, "answered")
	}
	if flags&mailindex.MsgFlagged != 0 {
		names = append(names, "flagged")
	}
	if flags&mailindex.MsgDraft != 0 {
		names = append(names, "draft")
	}

	if len(names) == 0 {
		return "(none)"
	}

	return strings.Join(names, ",")
}
