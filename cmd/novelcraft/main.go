// Package main is the entry point for novelcraft.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/azyu/novelcraft/internal/app"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/tui"
	"github.com/azyu/novelcraft/internal/tui/views"
)

var version = "0.1.0"

var errNoProjectFlag = errors.New("no project selected, pass --project <name> or set NOVELCRAFT_PROJECT")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "novelcraft",
	Short: "Write novels with an AI co-writer from the terminal",
	Long: `Novelcraft keeps a novel project (story foundation, chapters, characters,
locations, objects and references) and drives an AI writer that drafts
chapters, titles, summaries and revisions from it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newApp initializes the application with the configured stderr logger.
func newApp(opts ...app.Option) (*app.App, error) {
	application, err := app.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	slog.SetDefault(application.Logger)
	return application, nil
}

// projectName returns the first positional argument or the --project flag.
func projectName(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	name, _ := cmd.Flags().GetString("project")
	if name == "" {
		return "", errNoProjectFlag
	}
	return name, nil
}

// openProject initializes the app and opens the selected project. The
// caller closes the app.
func openProject(cmd *cobra.Command, args []string, opts ...app.Option) (*app.App, error) {
	name, err := projectName(cmd, args)
	if err != nil {
		return nil, err
	}
	application, err := newApp(opts...)
	if err != nil {
		return nil, err
	}
	if err := application.OpenProject(name); err != nil {
		application.Close()
		return nil, err
	}
	return application, nil
}

// assumeYes reports whether prompts should be skipped.
func assumeYes(cmd *cobra.Command) bool {
	yes, _ := cmd.Flags().GetBool("yes")
	return yes
}

// confirm asks a yes/no question unless --yes was given.
func confirm(cmd *cobra.Command, title, description string) (bool, error) {
	if assumeYes(cmd) {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return ok, nil
}

// chapterIndex parses a 1-based chapter number. Without an argument it
// returns the current chapter.
func chapterIndex(doc novel.Document, args []string) (int, error) {
	if len(args) == 0 || args[0] == "" {
		return doc.CurrentChapterIndex, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(doc.Chapters) {
		return 0, fmt.Errorf("chapter must be a number between 1 and %d", len(doc.Chapters))
	}
	return n - 1, nil
}

// position parses a 1-based list position for a collection of size n.
func position(arg string, n int, what string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		if n == 0 {
			return 0, fmt.Errorf("there are no %ss", what)
		}
		return 0, fmt.Errorf("%s must be a number between 1 and %d", what, n)
	}
	return i - 1, nil
}

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new novel project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.CreateProject(name); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created project '%s' at %s\n", name, application.CurrentProject.Path())

		skip, _ := cmd.Flags().GetBool("skip-wizard")
		if !skip && !assumeYes(cmd) {
			run, err := confirm(cmd, "Set up the story foundation now?", "The wizard asks for genre, style, premise, synopsis and plot.")
			if err != nil {
				return err
			}
			if run {
				if _, err := runWizard(cmd.Context(), application); err != nil {
					return err
				}
			}
		}

		fmt.Fprintf(out, "Run 'novelcraft open %s' to start writing!\n", name)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all novel projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp()
		if err != nil {
			return err
		}

		projects, err := application.ListProjects()
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects found. Create one with: novelcraft new <name>")
			return nil
		}

		fmt.Fprintln(out, "Projects:")
		for _, p := range projects {
			fmt.Fprintf(out, "  - %s (updated %s) - %s\n", p.Name, p.UpdatedAt.Format("2006-01-02 15:04"), p.Path)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a novel project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		application, err := newApp()
		if err != nil {
			return err
		}

		ok, err := confirm(cmd,
			fmt.Sprintf("Delete project '%s'?", name),
			"This permanently deletes the project and all its files.")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
			return nil
		}

		if err := application.ProjectManager.Delete(name); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project '%s' deleted.\n", name)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open [name]",
	Short: "Open a novel project in TUI mode",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOpenCmd,
}

func runOpenCmd(cmd *cobra.Command, args []string) error {
	cm, err := app.NewConfigManager()
	if err != nil {
		return err
	}
	cfg, err := cm.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}

	// The terminal belongs to the TUI, so logs go to a file.
	var logOut io.Writer = io.Discard
	if f, err := app.OpenLogFile(cfg.Logging); err == nil {
		defer f.Close()
		logOut = f
	}
	logger := app.NewLogger(cfg.Logging, logOut)

	application, err := openProject(cmd, args, app.WithConfigManager(cm), app.WithLogger(logger))
	if err != nil {
		return err
	}
	defer application.Close()

	skip, _ := cmd.Flags().GetBool("skip-wizard")
	if !skip && !application.Persister.Onboarded() {
		if _, err := runWizard(cmd.Context(), application); err != nil {
			return err
		}
	}

	gate := &tui.Gate{}
	application.OnImport(gate.Lock)

	model := tui.New(application.Store,
		tui.WithGate(gate),
		tui.WithWriter(application.Writer),
		tui.WithSearch(func(query string) ([]search.SearchResult, error) {
			return application.Search(query, search.DefaultSearchOptions())
		}),
		tui.WithProjectName(application.CurrentProject.Info.Name),
		tui.WithLogger(logger.With("component", "tui")),
	)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

var wizardCmd = &cobra.Command{
	Use:   "wizard [name]",
	Short: "Set up the story foundation: genre, style, premise, synopsis and plot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, args)
		if err != nil {
			return err
		}
		defer application.Close()

		done, err := runWizard(cmd.Context(), application)
		if err != nil {
			return err
		}
		if !done {
			fmt.Fprintln(cmd.OutOrStdout(), "Wizard cancelled, nothing changed.")
			return nil
		}
		if err := tui.Ready(application.Store.Document()); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Foundation saved. %v\n", err)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Foundation saved. The writer is ready.")
		return nil
	},
}

// runWizard runs the standalone wizard and applies its answers. It reports
// whether the wizard was completed.
func runWizard(ctx context.Context, application *app.App) (bool, error) {
	doc := application.Store.Document()

	opts := []views.WizardOption{views.Standalone()}
	if _, err := application.ProviderSettings(); err == nil {
		opts = append(opts, views.WithSynopsisGenerator(func(ctx context.Context, choices novel.Choices) (string, error) {
			w, err := application.Writer(ctx)
			if err != nil {
				return "", err
			}
			syn, err := w.Synopsis(ctx, choices)
			if err != nil {
				return "", err
			}
			return syn.Text, nil
		}))
	}

	wiz := views.NewWizard(doc.Choices, doc.PlotStructure, opts...)
	if _, err := tea.NewProgram(wiz, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return false, fmt.Errorf("wizard error: %w", err)
	}
	if !wiz.Completed() {
		return false, nil
	}
	application.Store.DispatchAll(wiz.Actions()...)
	application.Persister.MarkOnboarded()
	return true, nil
}

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show the story foundation, plot structure and broken links",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, args)
		if err != nil {
			return err
		}
		defer application.Close()

		printStatus(cmd.OutOrStdout(), application.Store.Document())
		return nil
	},
}

func printStatus(out io.Writer, doc novel.Document) {
	c := doc.Choices
	rows := [][2]string{
		{"Genre", novel.Deref(c.Genre)},
		{"Style", c.WritingStyle},
		{"Premise", c.Premise},
		{"Synopsis", firstLine(c.Synopsis)},
		{"Opening", novel.Deref(c.Opening)},
		{"Incident", novel.Deref(c.Incident)},
	}
	fmt.Fprintln(out, "Story foundation:")
	for _, row := range rows {
		value := row[1]
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(out, "  %-10s %s\n", row[0]+":", value)
	}

	p := doc.PlotStructure
	ending := novel.Deref(p.Ending)
	if ending == "" {
		ending = "(not set)"
	}
	fmt.Fprintf(out, "  %-10s %d chapters, conflict at %d, climax at %d, %s\n",
		"Plot:", p.TotalChapters, p.ConflictChapter, p.ClimaxChapter, ending)

	if err := tui.Ready(doc); err != nil {
		fmt.Fprintf(out, "\n%v\n", err)
	} else {
		fmt.Fprintln(out, "\nThe writer is ready.")
	}

	fmt.Fprintf(out, "\n%d chapters, %d characters, %d locations, %d objects, %d references\n",
		len(doc.Chapters), len(doc.Characters), len(doc.Locations), len(doc.Objects), len(doc.References))

	if dangling := doc.DanglingLinks(); len(dangling) > 0 {
		fmt.Fprintln(out, "\nBroken links:")
		for _, d := range dangling {
			fmt.Fprintf(out, "  chapter %d: %s %s\n", d.ChapterIndex+1, d.Kind, d.Link)
		}
	}
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(strings.TrimSpace(s), "\n")
	if cut {
		return line + " ..."
	}
	return line
}

func init() {
	rootCmd.PersistentFlags().StringP("project", "p", os.Getenv("NOVELCRAFT_PROJECT"), "Project to work on")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Skip confirmations and accept defaults")

	newCmd.Flags().Bool("skip-wizard", false, "Do not offer the story wizard")
	openCmd.Flags().Bool("skip-wizard", false, "Open the manuscript even on first run")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(statusCmd)
}
