// Package cli implements the addressbook command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yvasilyev92/AddressBook/internal/addressbook"
	"github.com/yvasilyev92/AddressBook/internal/config"
	"github.com/yvasilyev92/AddressBook/internal/logging"
)

var (
	errNotFound = errors.New("contact not found")
	errUsage    = errors.New("invalid usage")
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string

	// LogLevel and LogFormat come from the environment.
	LogLevel  string
	LogFormat string

	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the addressbook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "addressbook",
		Short: "A local contacts database with live queries",
		Long: `addressbook stores contacts in a single SQLite table.

Settings are read from the environment and overridden by flags:
  ADDRESSBOOK_DB          database file (--db)
  ADDRESSBOOK_LOG_LEVEL   debug, info, warn or error (--verbose forces debug)
  ADDRESSBOOK_LOG_FORMAT  text or json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database file (default $ADDRESSBOOK_DB or addressbook.db)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup validates flags and fills unset values from the environment.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	if !cmd.Flags().Changed("db") {
		o.DBPath = cfg.DBPath
	}
	o.LogLevel = cfg.LogLevel
	o.LogFormat = cfg.LogFormat
	if o.Verbose {
		o.LogLevel = "debug"
	}

	o.Logger = logging.New(cmd.ErrOrStderr(), logging.Options{Level: o.LogLevel, Format: o.LogFormat})
	return nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openBook opens the configured database, reporting failures through f.
func (o *RootOptions) openBook(f *OutputFormatter) (*addressbook.Book, error) {
	path := o.DBPath
	if path == "" {
		path = "addressbook.db"
	}
	f.VerboseLog("opening %s", path)

	book, err := addressbook.Open(path, addressbook.WithLogger(o.logger()))
	if err != nil {
		f.Error(CodeDBOpen, err.Error(), map[string]string{"path": path})
		e := WrapExitError(ExitCommandError, "open database", err)
		e.Reported = true
		return nil, e
	}
	return book, nil
}

// closeBook closes book, keeping err if it is already set.
func closeBook(book *addressbook.Book, err *error, logger *slog.Logger) {
	if cerr := book.Close(); cerr != nil {
		logger.Warn("close address book", "error", cerr)
		if *err == nil {
			*err = WrapExitError(ExitFailure, "close database", cerr)
		}
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: contact id must be a positive integer, got %q", errUsage, s)
	}
	return id, nil
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
