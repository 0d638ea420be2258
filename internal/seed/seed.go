// Package seed imports contacts from CUE files.
//
// A seed file binds a list of contacts:
//
//	contacts: [
//		{name: "Ada", phone: "555-1000"},
//		{name: "Bob", city: "Paris"},
//	]
//
// Files are unified with an embedded schema before decoding, so a missing or
// empty name, a non-string field or an unknown field is reported with its
// source position and nothing is imported.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

//go:embed contact.cue
var schemaSource string

// Error is a seed file validation error.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

type file struct {
	Contacts []schema.Contact `json:"contacts"`
}

// Parse validates src against the contact schema and decodes it.
// filename is used in error positions only.
func Parse(filename string, src []byte) ([]schema.Contact, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schemaSource, cue.Filename("contact.cue"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile contact schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := def.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return nil, formatCUEError(err)
	}
	return f.Contacts, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) ([]schema.Contact, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(path, src)
}

// Inserter adds one contact. Implemented by *addressbook.Book.
type Inserter interface {
	Insert(ctx context.Context, values schema.Values) (int64, error)
}

// Import inserts contacts in order and returns their ids. It stops at the
// first failure, returning the ids inserted so far.
func Import(ctx context.Context, dst Inserter, contacts []schema.Contact) ([]int64, error) {
	ids := make([]int64, 0, len(contacts))
	for i, c := range contacts {
		id, err := dst.Insert(ctx, c.Values())
		if err != nil {
			return ids, fmt.Errorf("import contact %d (%q): %w", i, c.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	e := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
