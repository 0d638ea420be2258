package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/yvasilyev92/AddressBook/internal/addressbook"
	"github.com/yvasilyev92/AddressBook/internal/loader"
	"github.com/yvasilyev92/AddressBook/internal/schema"
	"github.com/yvasilyev92/AddressBook/internal/store"
)

// SettleTimeout bounds how long the session waits for watches to catch up
// after a command.
var SettleTimeout = 5 * time.Second

// SessionOptions holds flags for the session command.
type SessionOptions struct {
	*RootOptions
	Watch []string
	Sort  string
}

// WatchEvent is the JSON payload printed for every watch delivery.
type WatchEvent struct {
	Watch    string           `json:"watch"`
	Contacts []schema.Contact `json:"contacts"`
}

const sessionHelp = `Commands:
  add field=value ...          insert a contact
  update <id> field=value ...  change fields (field= clears)
  delete <id>                  delete a contact
  get <id>                     show a contact
  list [sort order]            list contacts
  watch <address>              print the address's rows after every change
  unwatch <address>            stop watching
  watches                      list active watches
  help                         show this text
  quit                         leave the session
Values containing spaces can be quoted: name="Ada Lovelace"`

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run commands from stdin with live watches",
		Long: `Run address book commands read line by line from stdin.

Watched addresses are re-queried after every write that affects them and
their rows are printed again. An address is either the collection
("contacts") or one contact ("contacts/3").

` + sessionHelp,
		Example: `  addressbook session --watch contacts
  printf 'add name=Ada\nupdate 1 phone=555\n' | addressbook session --watch contacts/1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Watch, "watch", nil, "address to watch from the start (repeatable)")
	cmd.Flags().StringVar(&opts.Sort, "sort", schema.DefaultSortOrder, "sort order for watches")
	return cmd
}

// sessionWatch buffers rendered deliveries until the session flushes them,
// so a command's own output always precedes the deliveries it caused.
type sessionWatch struct {
	address string
	loader  *loader.Loader

	mu      sync.Mutex
	pending bytes.Buffer
}

func (w *sessionWatch) buffer(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending.Write(p)
}

func (w *sessionWatch) flush(dst io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() > 0 {
		dst.Write(w.pending.Bytes())
		w.pending.Reset()
	}
}

type session struct {
	book    *addressbook.Book
	f       *OutputFormatter
	sort    string
	logger  *slog.Logger
	watches []*sessionWatch
}

func runSession(opts *SessionOptions, cmd *cobra.Command) (err error) {
	f := opts.formatter(cmd)

	book, err := opts.openBook(f)
	if err != nil {
		return err
	}
	defer closeBook(book, &err, opts.logger())

	s := &session{book: book, f: f, sort: opts.Sort, logger: opts.logger()}
	for _, addr := range opts.Watch {
		if err := s.watch(addr); err != nil {
			return f.Fail(ExitCommandError, "watch "+addr, err)
		}
	}
	s.settle()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		s.exec(cmd, line)
		s.settle()
	}
	if err := scanner.Err(); err != nil {
		return f.Fail(ExitCommandError, "read commands", err)
	}
	return nil
}

// exec runs one command line. Failures are reported and the session goes on.
func (s *session) exec(cmd *cobra.Command, line string) {
	fields, err := splitFields(line)
	if err != nil {
		s.report(line, err)
		return
	}
	ctx := cmd.Context()
	name, args := fields[0], fields[1:]

	switch name {
	case "add":
		values, err := parseAssignments(args)
		if err != nil {
			s.report(line, err)
			return
		}
		id, err := s.book.Insert(ctx, values)
		if err != nil {
			s.report(line, err)
			return
		}
		s.f.Result(ContactResult{ID: id, Rows: 1}, func(w io.Writer) {
			fmt.Fprintf(w, "Added contact %d\n", id)
		})

	case "update":
		if len(args) < 2 {
			s.report(line, fmt.Errorf("%w: update <id> field=value ...", errUsage))
			return
		}
		id, err := parseID(args[0])
		if err != nil {
			s.report(line, err)
			return
		}
		values, err := parseAssignments(args[1:])
		if err != nil {
			s.report(line, err)
			return
		}
		rows, err := s.book.Update(ctx, id, values)
		if err != nil {
			s.report(line, err)
			return
		}
		s.f.Result(ContactResult{ID: id, Rows: rows}, func(w io.Writer) {
			fmt.Fprintf(w, "Updated %d row(s)\n", rows)
		})

	case "delete":
		id, err := s.singleID(args)
		if err != nil {
			s.report(line, err)
			return
		}
		rows, err := s.book.Delete(ctx, id)
		if err != nil {
			s.report(line, err)
			return
		}
		s.f.Result(ContactResult{ID: id, Rows: rows}, func(w io.Writer) {
			fmt.Fprintf(w, "Deleted %d row(s)\n", rows)
		})

	case "get":
		id, err := s.singleID(args)
		if err != nil {
			s.report(line, err)
			return
		}
		c, ok, err := s.book.Get(ctx, id)
		if err != nil {
			s.report(line, err)
			return
		}
		if !ok {
			s.report(line, fmt.Errorf("contact %d: %w", id, errNotFound))
			return
		}
		s.f.Result(c, func(w io.Writer) {
			fmt.Fprintln(w, formatContact(c))
		})

	case "list":
		contacts, err := s.book.List(ctx, strings.Join(args, " "))
		if err != nil {
			s.report(line, err)
			return
		}
		if contacts == nil {
			contacts = []schema.Contact{}
		}
		s.f.Result(contacts, func(w io.Writer) {
			writeContacts(w, contacts)
		})

	case "watch":
		if len(args) != 1 {
			s.report(line, fmt.Errorf("%w: watch <address>", errUsage))
			return
		}
		if err := s.watch(args[0]); err != nil {
			s.report(line, err)
		}

	case "unwatch":
		if len(args) != 1 {
			s.report(line, fmt.Errorf("%w: unwatch <address>", errUsage))
			return
		}
		if !s.unwatch(args[0]) {
			s.report(line, fmt.Errorf("%w: not watching %s", errUsage, args[0]))
		}

	case "watches":
		addrs := make([]string, 0, len(s.watches))
		for _, w := range s.watches {
			addrs = append(addrs, w.address)
		}
		s.f.Result(addrs, func(w io.Writer) {
			if len(addrs) == 0 {
				fmt.Fprintln(w, "No watches.")
			}
			for _, a := range addrs {
				fmt.Fprintln(w, a)
			}
		})

	case "help":
		s.f.Result(sessionHelp, func(w io.Writer) {
			fmt.Fprintln(w, sessionHelp)
		})

	default:
		s.report(line, fmt.Errorf("%w: unknown command %q (try help)", errUsage, name))
	}
}

func (s *session) singleID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one contact id", errUsage)
	}
	return parseID(args[0])
}

func (s *session) report(line string, err error) {
	s.f.Error(ErrorCode(err), err.Error(), map[string]string{"command": line})
}

func (s *session) watch(addr string) error {
	for _, w := range s.watches {
		if w.address == addr {
			return fmt.Errorf("%w: already watching %s", errUsage, addr)
		}
	}

	w := &sessionWatch{address: addr}
	l, err := s.book.Subscribe(addr, s.sort, func(rs *store.ResultSet) {
		s.deliver(w, rs)
	}, loader.WithErrorHandler(func(err error) {
		s.render(w, func(f *OutputFormatter) {
			f.Error(ErrorCode(err), fmt.Sprintf("watch %s: %v", addr, err), nil)
		})
	}))
	if err != nil {
		return err
	}
	w.loader = l
	s.watches = append(s.watches, w)
	s.f.VerboseLog("watching %s (%s)", addr, l.Token())
	return nil
}

func (s *session) unwatch(addr string) bool {
	for i, w := range s.watches {
		if w.address == addr {
			s.book.Unsubscribe(w.loader)
			w.flush(s.f.Writer)
			s.watches = append(s.watches[:i], s.watches[i+1:]...)
			return true
		}
	}
	return false
}

// deliver runs on the watch's loader goroutine.
func (s *session) deliver(w *sessionWatch, rs *store.ResultSet) {
	contacts, err := rs.Contacts()
	s.render(w, func(f *OutputFormatter) {
		if err != nil {
			f.Error(CodeInternal, fmt.Sprintf("watch %s: %v", w.address, err), nil)
			return
		}
		if contacts == nil {
			contacts = []schema.Contact{}
		}
		f.Result(WatchEvent{Watch: w.address, Contacts: contacts}, func(out io.Writer) {
			fmt.Fprintf(out, "[%s] %d contact(s)\n", w.address, len(contacts))
			for _, c := range contacts {
				fmt.Fprintf(out, "  %s\n", formatContact(c))
			}
		})
	})
}

// render formats output into w's buffer.
func (s *session) render(w *sessionWatch, fn func(f *OutputFormatter)) {
	var buf bytes.Buffer
	f := *s.f
	f.Writer = &buf
	fn(&f)
	w.buffer(buf.Bytes())
}

// settle waits until no watch has a query queued or running, then prints
// buffered deliveries in watch order.
func (s *session) settle() {
	deadline := time.Now().Add(SettleTimeout)
	for !s.idle() {
		if time.Now().After(deadline) {
			s.logger.Warn("watches did not settle", "timeout", SettleTimeout)
			break
		}
		time.Sleep(time.Millisecond)
	}
	for _, w := range s.watches {
		w.flush(s.f.Writer)
	}
}

func (s *session) idle() bool {
	for _, w := range s.watches {
		if !w.loader.Idle() {
			return false
		}
	}
	return true
}

// splitFields splits a command line on white space. Double quotes group
// words, and a backslash inside quotes escapes the next character.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(r):
			if started {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote", errUsage)
	}
	if started {
		fields = append(fields, cur.String())
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty command", errUsage)
	}
	return fields, nil
}

// parseAssignments turns field=value words into a payload. An empty value
// stores NULL. Field names are not checked here; the provider rejects
// unknown columns.
func parseAssignments(args []string) (schema.Values, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: expected field=value", errUsage)
	}
	values := schema.Values{}
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected field=value, got %q", errUsage, a)
		}
		if val == "" {
			values[key] = nil
		} else {
			values[key] = val
		}
	}
	return values, nil
}
