// Command treedb inspects and edits a treedb store from the command line.
//
// Paths use the text form of treedb.Path: "/" is the root, "/a/b" names keys,
// "/a/#3" names an index segment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/andreyvit/treedb"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type command struct {
	args  string
	nargs int
	write bool
	help  string
	run   func(tx *treedb.Tx, args []string, out io.Writer) error
}

var commands = map[string]command{
	"dump": {"", 0, false, "list all rows in storage order", func(tx *treedb.Tx, args []string, out io.Writer) error {
		_, err := io.WriteString(out, tx.Dump(treedb.DumpAll))
		return err
	}},
	"tree": {"<path>", 1, false, "show the subtree under path", func(tx *treedb.Tx, args []string, out io.Writer) error {
		s, err := tx.DumpTree(must(treedb.ParsePath(args[0])))
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, s)
		return err
	}},
	"get": {"<parent> <key>", 2, false, "print a single row", func(tx *treedb.Tx, args []string, out io.Writer) error {
		row, ok, err := tx.SelectSingle(must(treedb.ParsePath(args[0])), args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %q: not found", args[0], args[1])
		}
		_, err = fmt.Fprintln(out, row)
		return err
	}},
	"children": {"<parent>", 1, false, "list rows directly under parent", func(tx *treedb.Tx, args []string, out io.Writer) error {
		rows, err := tx.SelectChildren(must(treedb.ParsePath(args[0])))
		if err != nil {
			return err
		}
		return printRows(out, rows)
	}},
	"descendants": {"<parent>", 1, false, "list rows at any depth under parent", func(tx *treedb.Tx, args []string, out io.Writer) error {
		rows, err := tx.SelectDescendants(must(treedb.ParsePath(args[0])))
		if err != nil {
			return err
		}
		return printRows(out, rows)
	}},
	"put": {"<parent> <key> <value>", 3, true, "insert a leaf row", func(tx *treedb.Tx, args []string, out io.Writer) error {
		return tx.Insert(treedb.Leaf(must(treedb.ParsePath(args[0])), args[1], args[2]))
	}},
	"mkdir": {"<parent> <key>", 2, true, "insert a container row with a fresh suffix", func(tx *treedb.Tx, args []string, out io.Writer) error {
		parent := must(treedb.ParsePath(args[0]))
		suffix, err := tx.AllocateSuffix(parent)
		if err != nil {
			return err
		}
		if err := tx.Insert(treedb.Container(parent, args[1], suffix)); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, suffix)
		return err
	}},
	"append": {"<parent>", 1, true, "insert a container keyed by its fresh suffix", func(tx *treedb.Tx, args []string, out io.Writer) error {
		parent := must(treedb.ParsePath(args[0]))
		suffix, err := tx.AllocateSuffix(parent)
		if err != nil {
			return err
		}
		key := strconv.FormatUint(suffix, 10)
		if err := tx.Insert(treedb.Container(parent, key, suffix)); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, parent.Key(key))
		return err
	}},
	"rm": {"<parent> <key>", 2, true, "delete a single row", func(tx *treedb.Tx, args []string, out io.Writer) error {
		return tx.DeleteSingle(must(treedb.ParsePath(args[0])), args[1])
	}},
	"rmtree": {"<parent>", 1, true, "delete every row under parent", func(tx *treedb.Tx, args []string, out io.Writer) error {
		return tx.DeleteDescendants(must(treedb.ParsePath(args[0])))
	}},
	"clear": {"", 0, true, "delete every row", func(tx *treedb.Tx, args []string, out io.Writer) error {
		return tx.DeleteAll()
	}},
	"export": {"<file>", 1, false, "write all rows to file (- for stdout)", func(tx *treedb.Tx, args []string, out io.Writer) error {
		w := out
		if args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		n, err := tx.Export(w)
		if err != nil {
			return err
		}
		slog.Info("exported", "rows", n)
		return nil
	}},
	"import": {"<file>", 1, true, "insert all rows from an export file (- for stdin)", func(tx *treedb.Tx, args []string, out io.Writer) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		n, err := tx.Import(r)
		if err != nil {
			return err
		}
		slog.Info("imported", "rows", n)
		return nil
	}},
	"digest": {"", 0, false, "print the content digest", func(tx *treedb.Tx, args []string, out io.Writer) error {
		d, err := tx.Digest()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%016x\n", d)
		return err
	}},
	"stats": {"", 0, false, "print row statistics", func(tx *treedb.Tx, args []string, out io.Writer) error {
		_, err := io.WriteString(out, tx.Dump(treedb.DumpStats))
		return err
	}},
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "treedb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "", "YAML config file (optional)")
	dbPath := flag.String("db", "", "Store file, or mem:<name> for a scratch in-memory store")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	verbose := flag.Bool("v", false, "Log every mutation")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["db"] {
		cfg.DB = *dbPath
	} else if v := os.Getenv("TREEDB_DB"); v != "" {
		cfg.DB = v
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["v"] {
		cfg.Verbose = *verbose
	}

	logger := initLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	args = args[1:]
	if len(args) != cmd.nargs {
		return fmt.Errorf("usage: treedb %s %s", flag.Arg(0), cmd.args)
	}
	if cfg.DB == "" {
		return errors.New("no store given: use -db, TREEDB_DB or the config file")
	}

	store, err := treedb.Open(cfg.DB, treedb.Options{
		Logger:   logger,
		Verbose:  cfg.Verbose,
		MmapSize: cfg.MmapSize,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	run := func(tx *treedb.Tx) error {
		return cmd.run(tx, args, os.Stdout)
	}
	if cmd.write {
		return store.Update(run)
	}
	return store.View(run)
}

// must panics on invalid path arguments; the panic surfaces as an error from
// Store.View/Store.Update.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func printRows(out io.Writer, rows []treedb.Row) error {
	for _, row := range rows {
		if _, err := fmt.Fprintln(out, row); err != nil {
			return err
		}
	}
	return nil
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: treedb [flags] <command> [args]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(w, "  %-32s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.help)
	}
	fmt.Fprintf(w, "\nflags:\n")
	flag.PrintDefaults()
}

func initLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
