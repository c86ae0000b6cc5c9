package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cdlcore/internal/ir"
	"github.com/roach88/cdlcore/internal/resource"
)

// StoreOptions holds flags shared by the store subcommands.
type StoreOptions struct {
	*RootOptions
	Database string
}

// WriteResult reports an applied write.
type WriteResult struct {
	Resource string         `json:"resource"`
	Revision int64          `json:"revision"`
	ClientID string         `json:"client_id"`
	Set      map[string]any `json:"set,omitempty"`
	Deleted  []string       `json:"deleted,omitempty"`
}

// ChangeRecord is one logged write in a dump.
type ChangeRecord struct {
	Revision int64          `json:"revision"`
	ClientID string         `json:"client_id"`
	Set      map[string]any `json:"set,omitempty"`
	Deleted  []string       `json:"deleted,omitempty"`

	text string // ident=value and -ident, in ident order
}

// DumpResult is the state of a resource, optionally with its change log.
type DumpResult struct {
	Resource string         `json:"resource"`
	Revision int64          `json:"revision"`
	Elements map[string]any `json:"elements"`
	Changes  []ChangeRecord `json:"changes,omitempty"`

	snapshot []resource.Element
}

// ResourceEntry is one row of a resource listing.
type ResourceEntry struct {
	Resource string `json:"resource"`
	Revision int64  `json:"revision"`
}

// ResourceList lists written resources in name order.
type ResourceList []ResourceEntry

// NewStoreCommand creates the store command and its subcommands.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Write and inspect resources in a SQLite store",
		Long: `Write and inspect shared resources persisted in a SQLite database.

Writes go through the resource manager: each one is queued behind the
resource's load and is assigned the next revision.

Examples:
  cdlcore store write --db ./res.db prefs theme=\"dark\" size=12
  cdlcore store write --db ./res.db prefs --delete size
  cdlcore store dump --db ./res.db prefs --since 0
  cdlcore store list --db ./res.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newStoreWriteCommand(opts))
	cmd.AddCommand(newStoreDumpCommand(opts))
	cmd.AddCommand(newStoreListCommand(opts))

	return cmd
}

func newStoreWriteCommand(opts *StoreOptions) *cobra.Command {
	var deletes []string

	cmd := &cobra.Command{
		Use:   "write <resource> [ident=value...]",
		Short: "Apply one write to a resource",
		Long: `Apply one write to a resource. Values are parsed as JSON; anything that
is not valid JSON is stored as a string. Arrays become sets.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreWrite(opts, args[0], args[1:], deletes, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&deletes, "delete", nil, "element idents to delete")

	return cmd
}

func newStoreDumpCommand(opts *StoreOptions) *cobra.Command {
	var since int64

	cmd := &cobra.Command{
		Use:           "dump <resource>",
		Short:         "Print a resource's elements",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreDump(opts, args[0], since, cmd)
		},
	}

	cmd.Flags().Int64Var(&since, "since", -1, "also print logged writes after this revision")

	return cmd
}

func newStoreListCommand(opts *StoreOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List written resources and their revisions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreList(opts, cmd)
		},
	}
}

// openStore opens the database and reports failures through formatter.
func openStore(formatter *OutputFormatter, path string) (*resource.Store, error) {
	st, err := resource.Open(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, "failed to open database",
			withCode(ErrCodeStoreFailed, fmt.Errorf("opening database: %w", err)))
	}
	return st, nil
}

func closeStore(st *resource.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runStoreWrite(opts *StoreOptions, name string, assignments, deletes []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	changes, err := parseChanges(assignments, deletes)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid write", withCode(ErrCodeInvalidWrite, err))
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	m := resource.NewManager(st, resource.WithLogger(slog.Default()))
	defer m.Close()

	ctx := commandContext(cmd)
	rev, err := m.Write(ctx, name, changes).Wait(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "write failed", withCode(ErrCodeStoreFailed, err))
	}
	formatter.VerboseLog("Applied %d change(s) as client %s", len(changes), m.ClientID())

	result := &WriteResult{Resource: name, Revision: rev, ClientID: m.ClientID()}
	result.Set, result.Deleted = splitChanges(changes)
	return formatter.Success(result)
}

func runStoreDump(opts *StoreOptions, name string, since int64, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	m := resource.NewManager(st, resource.WithLogger(slog.Default()))
	defer m.Close()

	ctx := commandContext(cmd)
	snap, err := m.Load(name).Wait(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load failed", withCode(ErrCodeStoreFailed, err))
	}

	result := &DumpResult{Resource: name, Revision: snap.Revision, Elements: map[string]any{}, snapshot: snap.Elements}
	for _, e := range snap.Elements {
		result.Elements[e.Ident] = ir.ToGo(e.Value)
	}

	if since >= 0 {
		logged, err := st.Changes(ctx, name, since)
		if err != nil {
			return formatter.Fail(ExitCommandError, "reading change log failed", withCode(ErrCodeStoreFailed, err))
		}
		result.Changes = make([]ChangeRecord, 0, len(logged))
		for _, u := range logged {
			rec := ChangeRecord{Revision: u.Revision, ClientID: u.ClientID, text: formatChanges(u.Changes)}
			rec.Set, rec.Deleted = splitChanges(u.Changes)
			result.Changes = append(result.Changes, rec)
		}
	}
	return formatter.Success(result)
}

func runStoreList(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	infos, err := st.Resources(commandContext(cmd))
	if err != nil {
		return formatter.Fail(ExitCommandError, "listing resources failed", withCode(ErrCodeStoreFailed, err))
	}

	list := make(ResourceList, len(infos))
	for i, info := range infos {
		list[i] = ResourceEntry{Resource: info.Name, Revision: info.Revision}
	}
	return formatter.Success(list)
}

func (r *WriteResult) writeText(w, _ io.Writer) {
	fmt.Fprintf(w, "✓ Wrote %d change(s) to %s at revision %d\n", len(r.Set)+len(r.Deleted), r.Resource, r.Revision)
}

func (r *DumpResult) writeText(w, _ io.Writer) {
	fmt.Fprintf(w, "%s @ revision %d\n", r.Resource, r.Revision)
	for _, e := range r.snapshot {
		fmt.Fprintf(w, "  %s = %s\n", e.Ident, ir.Format(e.Value))
	}
	if r.Changes == nil {
		return
	}
	fmt.Fprintln(w, "Changes:")
	for _, c := range r.Changes {
		fmt.Fprintf(w, "  r%d %s\n", c.Revision, c.text)
	}
}

func (l ResourceList) writeText(w, _ io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No resources.")
		return
	}
	for _, e := range l {
		fmt.Fprintf(w, "%s\t%d\n", e.Resource, e.Revision)
	}
}

// parseChanges turns ident=value arguments and deleted idents into a
// write. Values that are not valid JSON are taken as strings.
func parseChanges(assignments, deletes []string) ([]resource.Element, error) {
	changes := make([]resource.Element, 0, len(assignments)+len(deletes))
	for _, a := range assignments {
		ident, raw, ok := strings.Cut(a, "=")
		if !ok || ident == "" {
			return nil, fmt.Errorf("expected ident=value, got %q", a)
		}
		v, err := ir.UnmarshalValue([]byte(raw))
		if err != nil {
			v = ir.String(raw)
		}
		changes = append(changes, resource.Element{Ident: ident, Value: v})
	}
	for _, ident := range deletes {
		changes = append(changes, resource.Element{Ident: ident})
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("nothing to write: give ident=value arguments or --delete")
	}
	return changes, nil
}

func splitChanges(changes []resource.Element) (map[string]any, []string) {
	var (
		set     map[string]any
		deleted []string
	)
	for _, c := range changes {
		if c.Deleted() {
			deleted = append(deleted, c.Ident)
			continue
		}
		if set == nil {
			set = map[string]any{}
		}
		set[c.Ident] = ir.ToGo(c.Value)
	}
	return set, deleted
}

// formatChanges renders a write as "ident=value" for assignments and
// "-ident" for deletions, in ident order.
func formatChanges(changes []resource.Element) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		if c.Deleted() {
			parts[i] = "-" + c.Ident
		} else {
			parts[i] = c.Ident + "=" + ir.Format(c.Value)
		}
	}
	return strings.Join(parts, " ")
}
