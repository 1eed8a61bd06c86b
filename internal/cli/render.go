package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"alienrisk/internal/blob"
	"alienrisk/internal/core"
	"alienrisk/pkg/domain"
)

const timeLayout = "2006-01-02 15:04"

func renderSnapshots(snapshots []domain.Snapshot) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(snapshots) == 0 {
			_, err := fmt.Fprintln(w, "No snapshots.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLEVEL\tSCORE\tCATEGORY\tSOURCE\tCREATED\tTITLE")
		for _, s := range snapshots {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				s.ID, s.Risk.RiskLevel, s.Risk.RiskScore, s.Risk.Category, s.Source,
				s.CreatedAt.Local().Format(timeLayout), s.Risk.Title)
		}
		return tw.Flush()
	}
}

func renderSnapshot(s domain.Snapshot) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		row := func(k, v string) { fmt.Fprintf(tw, "%s:\t%s\n", k, v) }
		row("ID", s.ID)
		row("Title", s.Risk.Title)
		if s.Risk.Description != "" {
			row("Description", s.Risk.Description)
		}
		row("Category", fmt.Sprintf("%s (%s)", s.Risk.Category, domain.CategoryLabel(s.Risk.Category)))
		row("Likelihood", fmt.Sprint(s.Risk.Likelihood))
		row("Impact", fmt.Sprint(s.Risk.Impact))
		row("Score", fmt.Sprintf("%d (%s)", s.Risk.RiskScore, s.Risk.RiskLevel))
		row("Source", string(s.Source))
		if s.Risk.RemoteID != "" {
			row("Remote ID", s.Risk.RemoteID)
		}
		if len(s.Tags) > 0 {
			row("Tags", strings.Join(s.Tags, ", "))
		}
		if s.Note != "" {
			row("Note", s.Note)
		}
		row("Created", s.CreatedAt.Format(time.RFC3339))
		row("Updated", s.UpdatedAt.Format(time.RFC3339))
		return tw.Flush()
	}
}

func renderStats(st core.Stats) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "Total: %d\nAverage score: %.2f\n\n", st.Total, st.AverageRiskScore)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LEVEL\tCOUNT")
		for _, l := range domain.Levels() {
			fmt.Fprintf(tw, "%s\t%d\n", l, st.ByLevel[l])
		}
		fmt.Fprintln(tw, "\t")
		fmt.Fprintln(tw, "CATEGORY\tCOUNT")
		for _, c := range domain.Categories() {
			fmt.Fprintf(tw, "%s\t%d\n", c, st.ByCategory[c])
		}
		fmt.Fprintln(tw, "\t")
		fmt.Fprintln(tw, "SOURCE\tCOUNT")
		for _, src := range domain.Sources() {
			fmt.Fprintf(tw, "%s\t%d\n", src, st.BySource[src])
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w, "\nLikelihood x impact (rows: likelihood 5..1)")
		for l := domain.MaxRating; l >= domain.MinRating; l-- {
			cells := make([]string, 0, domain.MaxRating)
			for i := domain.MinRating; i <= domain.MaxRating; i++ {
				cells = append(cells, fmt.Sprintf("%3d", st.Matrix[l-1][i-1]))
			}
			fmt.Fprintf(w, "  %d |%s\n", l, strings.Join(cells, " "))
		}
		return nil
	}
}

func renderImport(result core.ImportResult) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "Imported %d snapshot(s).\n", result.ImportedCount)
		for _, r := range result.Rejections {
			fmt.Fprintf(w, "  rejected: %s\n", r)
		}
		return nil
	}
}

func renderArchives(infos []blob.Info) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(infos) == 0 {
			_, err := fmt.Fprintln(w, "No archives.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSNAPSHOTS\tSIZE\tSTORED")
		for _, info := range infos {
			count := info.Metadata["count"]
			if count == "" {
				count = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Key, count, info.Size, info.LastModified.Local().Format(timeLayout))
		}
		return tw.Flush()
	}
}
