package cli

import (
	"context"
	"fmt"

	"alienrisk/internal/core"
	"alienrisk/pkg/domain"

	"github.com/spf13/cobra"
)

// filterFlags are shared by search and filter.
type filterFlags struct {
	category, level, source, from, to string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.category, "category", "", "only this category (e.g. INVASION)")
	cmd.Flags().StringVar(&f.level, "level", "", "only this level (LOW|MEDIUM|HIGH|CRITICAL)")
	cmd.Flags().StringVar(&f.source, "source", "", "only this source (local|remote)")
	cmd.Flags().StringVar(&f.from, "from", "", "created at or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "created at or before (YYYY-MM-DD or RFC3339)")
}

func (f *filterFlags) criteria() (core.Criteria, error) {
	values := map[string]string{}
	for k, v := range map[string]string{
		"category": f.category, "level": f.level, "source": f.source, "from": f.from, "to": f.to,
	} {
		if v != "" {
			values[k] = v
		}
	}
	criteria, err := core.ParseCriteria(values)
	if err != nil {
		return core.Criteria{}, classify("invalid filter", err)
	}
	return criteria, nil
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every snapshot, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snapshots := s.store.List(cmd.Context())
			return s.out.Success(snapshots, renderSnapshots(snapshots))
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snap, ok := s.store.Get(cmd.Context(), args[0])
			if !ok {
				return classify("show snapshot", domain.ErrNotFound{ID: args[0]})
			}
			return s.out.Success(snap, renderSnapshot(snap))
		},
	}
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		form     domain.FormData
		category string
		source   string
		remoteID string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Assess a new risk and store the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form.Category = domain.Category(category)
			if err := form.Validate(); err != nil {
				return classify("invalid form", err)
			}
			var src domain.Source
			if source != "" {
				parsed, err := domain.ParseSource(source)
				if err != nil {
					return classify("invalid form", &domain.ValidationError{Field: "source", Reason: err.Error()})
				}
				src = parsed
			}
			var remote *domain.RemoteRecord
			if remoteID != "" {
				remote = &domain.RemoteRecord{ID: remoteID}
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snap, err := s.store.Create(cmd.Context(), form, src, remote)
			if err != nil {
				return classify("create snapshot", err)
			}
			s.out.VerboseLog("created %s", snap.ID)
			return s.out.Success(snap, renderSnapshot(snap))
		},
	}
	cmd.Flags().StringVar(&form.Title, "title", "", "risk title (required)")
	cmd.Flags().StringVar(&form.Description, "description", "", "risk description")
	cmd.Flags().StringVar(&category, "category", "", "risk category (required)")
	cmd.Flags().IntVar(&form.Likelihood, "likelihood", 0, "likelihood rating 1-5 (required)")
	cmd.Flags().IntVar(&form.Impact, "impact", 0, "impact rating 1-5 (required)")
	cmd.Flags().StringSliceVar(&form.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&form.Note, "note", "", "free-form note")
	cmd.Flags().StringVar(&source, "source", "", "provenance: local (default) or remote")
	cmd.Flags().StringVar(&remoteID, "remote-id", "", "id of the record confirmed by the remote service")
	return cmd
}

// NewUpdateCommand creates the update command. Only flags given on the
// command line are patched.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		title, description, category, note, remoteID string
		likelihood, impact                           int
		tags                                         []string
		clearTags                                    bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch domain.Patch
			if flags.Changed("title") {
				patch.Risk.Title = &title
			}
			if flags.Changed("description") {
				patch.Risk.Description = &description
			}
			if flags.Changed("category") {
				c := domain.Category(category)
				patch.Risk.Category = &c
			}
			if flags.Changed("likelihood") {
				patch.Risk.Likelihood = &likelihood
			}
			if flags.Changed("impact") {
				patch.Risk.Impact = &impact
			}
			if flags.Changed("remote-id") {
				patch.Risk.RemoteID = &remoteID
			}
			if flags.Changed("note") {
				patch.Note = &note
			}
			switch {
			case clearTags:
				patch.Tags = []string{}
			case flags.Changed("tag"):
				patch.Tags = tags
			}
			if err := domain.ValidatePatch(patch); err != nil {
				return classify("invalid patch", err)
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snap, found, err := s.store.Update(cmd.Context(), args[0], patch)
			if err != nil {
				return classify("update snapshot", err)
			}
			if !found {
				return classify("update snapshot", domain.ErrNotFound{ID: args[0]})
			}
			return s.out.Success(snap, renderSnapshot(snap))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().IntVar(&likelihood, "likelihood", 0, "new likelihood 1-5")
	cmd.Flags().IntVar(&impact, "impact", 0, "new impact 1-5")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "remove every tag")
	cmd.Flags().StringVar(&note, "note", "", "new note")
	cmd.Flags().StringVar(&remoteID, "remote-id", "", "new remote record id")
	cmd.MarkFlagsMutuallyExclusive("tag", "clear-tags")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete one or more snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			if len(args) == 1 {
				if !s.store.Delete(cmd.Context(), args[0]) {
					return s.deleteFailure(cmd.Context(), args[0])
				}
				return s.out.Success(map[string]int{"deleted": 1}, textLine("Deleted 1 snapshot."))
			}
			n := s.store.DeleteMany(cmd.Context(), args)
			if n == 0 {
				return NewExitError(ExitFailure, ErrCodeNotFound, "no matching snapshots deleted")
			}
			return s.out.Success(map[string]int{"deleted": n}, textLine(fmt.Sprintf("Deleted %d snapshot(s).", n)))
		},
	}
}

// deleteFailure explains a single delete that removed nothing: the id is
// absent, or storage failed underneath it.
func (s *session) deleteFailure(ctx context.Context, id string) error {
	_, found, err := s.store.Lookup(ctx, id)
	switch {
	case err != nil:
		return classify("delete snapshot", err)
	case found:
		return NewExitError(ExitFailure, ErrCodePersistence, fmt.Sprintf("delete snapshot %s: storage did not remove it", id))
	default:
		return classify("delete snapshot", domain.ErrNotFound{ID: id})
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return NewExitError(ExitCommandError, ErrCodeUsage, "refusing to clear without --yes")
			}
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			s.store.Clear(cmd.Context())
			return s.out.Success(map[string]bool{"cleared": true}, textLine("Collection cleared."))
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing every snapshot")
	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, descriptions, notes and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := filters.criteria()
			if err != nil {
				return err
			}
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snapshots := core.Filter(s.store.Search(cmd.Context(), args[0]), criteria)
			return s.out.Success(snapshots, renderSnapshots(snapshots))
		},
	}
	filters.bind(cmd)
	return cmd
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	var filters filterFlags
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List snapshots matching every given criterion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := filters.criteria()
			if err != nil {
				return err
			}
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			snapshots := s.store.Filter(cmd.Context(), criteria)
			return s.out.Success(snapshots, renderSnapshots(snapshots))
		},
	}
	filters.bind(cmd)
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			st := s.store.Stats(cmd.Context())
			return s.out.Success(st, renderStats(st))
		},
	}
}
