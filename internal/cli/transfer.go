package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"alienrisk/internal/blob"
	"alienrisk/internal/core"

	"github.com/spf13/cobra"
)

func textLine(line string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := fmt.Fprintln(w, line)
		return err
	}
}

type exportSummary struct {
	File    string     `json:"file,omitempty"`
	Archive *blob.Info `json:"archive,omitempty"`
}

// NewExportCommand creates the export command. Without --output or --upload
// the envelope is written to stdout as-is, whatever --format says.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collection as a versioned JSON envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if output == "" && !upload {
				doc, err := s.store.Export(cmd.Context())
				if err != nil {
					return classify("export", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				return err
			}

			var summary exportSummary
			if output != "" {
				doc, err := s.store.Export(cmd.Context())
				if err != nil {
					return classify("export", err)
				}
				if err := os.WriteFile(output, doc, 0o600); err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "write export", err)
				}
				summary.File = output
			}
			if upload {
				svc, err := s.archive(cmd.Context())
				if err != nil {
					return err
				}
				info, err := svc.Push(cmd.Context())
				if err != nil {
					return classify("upload export", err)
				}
				summary.Archive = &info
			}
			return s.out.Success(summary, func(w io.Writer) error {
				if summary.File != "" {
					fmt.Fprintf(w, "Wrote %s\n", summary.File)
				}
				if summary.Archive != nil {
					fmt.Fprintf(w, "Archived %s\n", summary.Archive.Key)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the envelope to this file")
	cmd.Flags().BoolVar(&upload, "upload", false, "also store the envelope in blob storage")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var fromArchive string
	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Merge an export envelope into the collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (fromArchive != "") {
				return NewExitError(ExitCommandError, ErrCodeUsage, "give exactly one of a file argument or --from-archive")
			}
			var doc []byte
			if len(args) == 1 {
				var err error
				doc, err = readInput(cmd, args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, ErrCodeUsage, "read import file", err)
				}
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			var result core.ImportResult
			if fromArchive != "" {
				svc, err := s.archive(cmd.Context())
				if err != nil {
					return err
				}
				result, err = svc.Pull(cmd.Context(), fromArchive)
				if err != nil {
					return classify("import archive", err)
				}
			} else {
				result = s.store.Import(cmd.Context(), doc)
			}
			if !result.Accepted {
				exitErr := NewExitError(ExitFailure, ErrCodeImport, "nothing imported")
				exitErr.Details = result
				if len(result.Rejections) > 0 {
					exitErr.Message = fmt.Sprintf("nothing imported: %s", result.Rejections[0])
				}
				return exitErr
			}
			return s.out.Success(result, renderImport(result))
		},
	}
	cmd.Flags().StringVar(&fromArchive, "from-archive", "", "import the archive stored under this key")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// NewArchivesCommand creates the archives command and its url subcommand.
func NewArchivesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List exports stored in blob storage, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			svc, err := s.archive(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := svc.List(cmd.Context())
			if err != nil {
				return classify("list archives", err)
			}
			if infos == nil {
				infos = []blob.Info{}
			}
			return s.out.Success(infos, renderArchives(infos))
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "url <key>",
		Short: "Print a time-limited download URL for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()
			svc, err := s.archive(cmd.Context())
			if err != nil {
				return err
			}
			u, err := svc.URL(cmd.Context(), args[0])
			if errors.Is(err, blob.ErrUnsupported) {
				return WrapExitError(ExitFailure, ErrCodeGeneric, "the configured blob driver cannot sign URLs", err)
			}
			if err != nil {
				return classify("sign archive url", err)
			}
			return s.out.Success(map[string]string{"key": args[0], "url": u}, textLine(u))
		},
	})
	return cmd
}
