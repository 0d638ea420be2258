package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yvasilyev92/AddressBook/internal/seed"
)

// ImportResult is the JSON payload of the import command.
type ImportResult struct {
	File string  `json:"file"`
	IDs  []int64 `json:"ids"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.cue>",
		Short: "Import contacts from a CUE file",
		Long: `Import contacts from a CUE file.

The file must define a list of contacts, each with a non-empty name:

  contacts: [
    {name: "Ada Lovelace", email: "ada@example.com"},
    {name: "Charles Babbage", city: "London"},
  ]

Contacts are inserted in file order. Import stops at the first rejected
contact; contacts inserted before it are kept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := args[0]
			f := rootOpts.formatter(cmd)

			if _, err := os.Stat(path); os.IsNotExist(err) {
				return f.Fail(ExitCommandError, "import", fmt.Errorf("%w: file not found: %s", errUsage, path))
			}

			contacts, err := seed.LoadFile(path)
			if err != nil {
				return f.Fail(ExitFailure, "import "+path, err)
			}
			f.VerboseLog("parsed %d contacts from %s", len(contacts), path)

			if dryRun {
				return f.Result(ImportResult{File: path, IDs: []int64{}}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d contacts valid\n", path, len(contacts))
				})
			}

			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			ids, err := seed.Import(cmd.Context(), book, contacts)
			if err != nil {
				return f.Fail(ExitFailure, fmt.Sprintf("import %s (%d of %d inserted)", path, len(ids), len(contacts)), err)
			}
			return f.Result(ImportResult{File: path, IDs: ids}, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d contacts from %s\n", len(ids), path)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}
