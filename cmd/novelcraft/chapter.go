package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
)

var chapterCmd = &cobra.Command{
	Use:   "chapter",
	Short: "Manage chapters",
}

var chapterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		out := cmd.OutOrStdout()
		for i, ch := range doc.Chapters {
			marker := " "
			if i == doc.CurrentChapterIndex {
				marker = "*"
			}
			plot := ""
			if ch.PlotPoint != "" {
				plot = " [" + ch.PlotPoint + "]"
			}
			fmt.Fprintf(out, "%s %2d. %s (%s, %d words)%s\n",
				marker, i+1, ch.Title, ch.Status, len(strings.Fields(ch.Content)), plot)
		}
		return nil
	},
}

var chapterAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Append an empty chapter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		n := len(application.Store.Document().Chapters) + 1
		title := fmt.Sprintf("Chapter %d", n)
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			title = strings.TrimSpace(args[0])
		}
		application.Store.Dispatch(store.AddChapter{Chapter: novel.NewChapter(title)})
		fmt.Fprintf(cmd.OutOrStdout(), "Added chapter %d: %s\n", n, title)
		return nil
	},
}

var chapterTitleCmd = &cobra.Command{
	Use:   "title <chapter> <title>",
	Short: "Rename a chapter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		i, err := chapterIndex(application.Store.Document(), args[:1])
		if err != nil {
			return err
		}
		application.Store.Dispatch(store.SetChapterTitle{Index: i, Value: strings.TrimSpace(args[1])})
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d renamed.\n", i+1)
		return nil
	},
}

var chapterStatusCmd = &cobra.Command{
	Use:   "status [chapter]",
	Short: "Toggle a chapter between draft and final",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		i, err := chapterIndex(application.Store.Document(), args)
		if err != nil {
			return err
		}
		application.Store.Dispatch(store.ToggleChapterStatus{Index: i})
		status := application.Store.Document().Chapters[i].Status
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d is now %s.\n", i+1, status)
		return nil
	},
}

var chapterPlotCmd = &cobra.Command{
	Use:   "plot <chapter> [plot point]",
	Short: "Assign a plot point to a chapter",
	Long:  "Assign a plot point to a chapter. Plot points: " + strings.Join(novel.PlotPoints, ", "),
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		i, err := chapterIndex(doc, args[:1])
		if err != nil {
			return err
		}

		var point string
		if len(args) == 2 {
			point = strings.ToLower(strings.TrimSpace(args[1]))
		} else {
			point = doc.Chapters[i].PlotPoint
			options := make([]huh.Option[string], 0, len(novel.PlotPoints))
			for _, p := range novel.PlotPoints {
				options = append(options, huh.NewOption(p, p))
			}
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title(fmt.Sprintf("Plot point for chapter %d", i+1)).
						Options(options...).
						Value(&point),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("plot point selection failed: %w", err)
			}
		}
		if !novel.IsPlotPoint(point) {
			return fmt.Errorf("unknown plot point %q, expected one of: %s", point, strings.Join(novel.PlotPoints, ", "))
		}

		application.Store.Dispatch(store.SetChapterPlotPoint{Index: i, Value: point})
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d plot point: %s\n", i+1, point)
		return nil
	},
}

var chapterSummaryCmd = &cobra.Command{
	Use:   "summary <chapter> <summary>",
	Short: "Set a chapter summary by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		i, err := chapterIndex(application.Store.Document(), args[:1])
		if err != nil {
			return err
		}
		application.Store.Dispatch(store.SetChapterSummary{Index: i, Value: strings.TrimSpace(args[1])})
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d summary saved.\n", i+1)
		return nil
	},
}

var chapterGotoCmd = &cobra.Command{
	Use:   "goto <chapter>",
	Short: "Make a chapter the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		i, err := chapterIndex(application.Store.Document(), args)
		if err != nil {
			return err
		}
		application.Store.Dispatch(store.SetCurrentChapterIndex{Index: i})
		fmt.Fprintf(cmd.OutOrStdout(), "Current chapter: %d\n", i+1)
		return nil
	},
}

var chapterDeleteCmd = &cobra.Command{
	Use:   "delete <chapter>",
	Short: "Delete a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		if len(doc.Chapters) == 1 {
			return fmt.Errorf("cannot delete the only chapter")
		}
		i, err := chapterIndex(doc, args)
		if err != nil {
			return err
		}

		ok, err := confirm(cmd, fmt.Sprintf("Delete chapter %d (%s)?", i+1, doc.Chapters[i].Title), "Its text, summary and links are removed.")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
			return nil
		}
		application.Store.Dispatch(store.DeleteChapter{Index: i})
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d deleted.\n", i+1)
		return nil
	},
}

func init() {
	chapterCmd.AddCommand(chapterListCmd)
	chapterCmd.AddCommand(chapterAddCmd)
	chapterCmd.AddCommand(chapterTitleCmd)
	chapterCmd.AddCommand(chapterStatusCmd)
	chapterCmd.AddCommand(chapterPlotCmd)
	chapterCmd.AddCommand(chapterSummaryCmd)
	chapterCmd.AddCommand(chapterGotoCmd)
	chapterCmd.AddCommand(chapterDeleteCmd)

	rootCmd.AddCommand(chapterCmd)
}
