package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

// ContactResult is the JSON payload of add, update and delete.
type ContactResult struct {
	ID   int64 `json:"id"`
	Rows int64 `json:"rows"`
}

// contactFlags binds one string flag per writable column.
type contactFlags struct {
	cmd    *cobra.Command
	values map[string]*string
}

func addContactFlags(cmd *cobra.Command) *contactFlags {
	cf := &contactFlags{cmd: cmd, values: make(map[string]*string)}
	for _, col := range schema.ValueColumns() {
		cf.values[col] = cmd.Flags().String(col, "", "contact "+col)
	}
	return cf
}

// payload returns the columns whose flags were set. An explicitly empty
// flag clears the column.
func (cf *contactFlags) payload() schema.Values {
	v := schema.Values{}
	for _, col := range schema.ValueColumns() {
		if !cf.cmd.Flags().Changed(col) {
			continue
		}
		if s := *cf.values[col]; s != "" {
			v[col] = s
		} else {
			v[col] = nil
		}
	}
	return v
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var fields *contactFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact",
		Example: `  addressbook add --name "Ada Lovelace" --phone 555-0100
  addressbook add --name Bob --city London --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := rootOpts.formatter(cmd)
			values := fields.payload()
			if len(values) == 0 {
				return f.Fail(ExitCommandError, "add", fmt.Errorf("%w: set at least one field", errUsage))
			}

			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			id, err := book.Insert(cmd.Context(), values)
			if err != nil {
				return f.Fail(ExitFailure, "add contact", err)
			}
			return f.Result(ContactResult{ID: id, Rows: 1}, func(w io.Writer) {
				fmt.Fprintf(w, "Added contact %d\n", id)
			})
		},
	}
	fields = addContactFlags(cmd)
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one contact",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := rootOpts.formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, "get", err)
			}

			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			c, ok, err := book.Get(cmd.Context(), id)
			if err != nil {
				return f.Fail(ExitFailure, "get contact", err)
			}
			if !ok {
				return f.Fail(ExitFailure, fmt.Sprintf("contact %d", id), errNotFound)
			}
			return f.Result(c, func(w io.Writer) {
				fmt.Fprintln(w, formatContact(c))
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var sortOrder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Long: `List every contact.

Contacts are ordered by name, ignoring case, unless --sort is given.
A sort order is a comma-separated list of
  column [COLLATE NOCASE|BINARY|RTRIM] [ASC|DESC]`,
		Example: `  addressbook list
  addressbook list --sort "city ASC, name COLLATE NOCASE"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := rootOpts.formatter(cmd)
			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			contacts, err := book.List(cmd.Context(), sortOrder)
			if err != nil {
				return f.Fail(ExitFailure, "list contacts", err)
			}
			if contacts == nil {
				contacts = []schema.Contact{}
			}
			return f.Result(contacts, func(w io.Writer) {
				writeContacts(w, contacts)
			})
		},
	}

	cmd.Flags().StringVar(&sortOrder, "sort", "", "sort order (default name COLLATE NOCASE ASC)")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var fields *contactFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a contact",
		Long: `Change fields of a contact.

Only the fields given are written. An empty value clears the field.`,
		Example:       `  addressbook update 3 --phone 555-0199 --email ""`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := rootOpts.formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, "update", err)
			}
			values := fields.payload()
			if len(values) == 0 {
				return f.Fail(ExitCommandError, "update", fmt.Errorf("%w: set at least one field", errUsage))
			}

			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			rows, err := book.Update(cmd.Context(), id, values)
			if err != nil {
				return f.Fail(ExitFailure, "update contact", err)
			}
			if rows == 0 {
				return f.Fail(ExitFailure, fmt.Sprintf("contact %d", id), errNotFound)
			}
			return f.Result(ContactResult{ID: id, Rows: rows}, func(w io.Writer) {
				fmt.Fprintf(w, "Updated contact %d\n", id)
			})
		},
	}
	fields = addContactFlags(cmd)
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a contact",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := rootOpts.formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, "delete", err)
			}

			book, err := rootOpts.openBook(f)
			if err != nil {
				return err
			}
			defer closeBook(book, &err, rootOpts.logger())

			rows, err := book.Delete(cmd.Context(), id)
			if err != nil {
				return f.Fail(ExitFailure, "delete contact", err)
			}
			if rows == 0 {
				return f.Fail(ExitFailure, fmt.Sprintf("contact %d", id), errNotFound)
			}
			return f.Result(ContactResult{ID: id, Rows: rows}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted contact %d\n", id)
			})
		},
	}
}

// formatContact renders c on one line: "#3 Ada Lovelace phone=555-0100".
func formatContact(c schema.Contact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", c.ID, c.Name)
	for _, kv := range [][2]string{
		{schema.ColumnPhone, c.Phone},
		{schema.ColumnEmail, c.Email},
		{schema.ColumnStreet, c.Street},
		{schema.ColumnCity, c.City},
		{schema.ColumnState, c.State},
		{schema.ColumnZip, c.Zip},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, " %s=%s", kv[0], kv[1])
		}
	}
	return b.String()
}

func writeContacts(w io.Writer, contacts []schema.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, "No contacts.")
		return
	}
	for _, c := range contacts {
		fmt.Fprintln(w, formatContact(c))
	}
}
