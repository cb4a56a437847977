package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/azyu/novelcraft/internal/app"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/persist"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/storage"
)

const maxImportSize = 50 << 20

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the project document as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		outDir, _ := cmd.Flags().GetString("out")
		var path string
		if outDir == "" {
			path, err = application.Export()
		} else {
			path, err = persist.ExportFile(application.Store.Document(), outDir)
		}
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the project document with an exported file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := storage.ReadFileLimited(args[0], maxImportSize)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		ok, err := confirm(cmd, "Replace the current document?", "Everything in the project is overwritten by the imported file.")
		if err != nil || !ok {
			return err
		}
		if err := application.Import(data); err != nil {
			if errors.Is(err, persist.ErrMalformedImport) {
				return fmt.Errorf("%s is not a novel export: %w", filepath.Base(args[0]), err)
			}
			return err
		}

		doc := application.Store.Document()
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chapters and %d characters.\n", len(doc.Chapters), len(doc.Characters))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start the project over with an empty document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		all, _ := cmd.Flags().GetBool("all")
		description := "All chapters, assets and the story foundation are removed."
		if all {
			description = "All stored data, including the saved API key, is removed."
		}
		ok, err := confirm(cmd, "Reset the project?", description)
		if err != nil || !ok {
			return err
		}

		if all {
			err = application.ResetApplication()
		} else {
			err = application.ResetDocument()
		}
		if err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Project reset.")
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search chapters, assets and references",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filterType, _ := cmd.Flags().GetString("type")
		if !search.IsValidSourceType(filterType) {
			return fmt.Errorf("unknown type %q, expected one of: reference, chapter, character, location, object", filterType)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		opts := search.DefaultSearchOptions().WithLimit(limit).WithFilterType(filterType)
		results, err := application.Search(strings.Join(args, " "), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No matches.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s: %s\n  %s\n", r.Entry.Source(), r.Entry.Title, strings.Join(strings.Fields(r.Snippet), " "))
		}
		return nil
	},
}

var manuscriptCmd = &cobra.Command{
	Use:   "manuscript",
	Short: "Compile the chapters into one file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		format, _ := cmd.Flags().GetString("format")
		finalOnly, _ := cmd.Flags().GetBool("final-only")
		path, _ := cmd.Flags().GetString("out")
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = application.CurrentProject.Info.Name
		}
		if path == "" {
			path = storage.FileName(application.CurrentProject.ExportDir(), title, format)
		}

		opts := storage.ManuscriptOptions{Title: title, Format: format, FinalOnly: finalOnly}
		if err := storage.NewManuscript().WriteFile(application.Store.Document(), opts, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Manuscript written to %s\n", path)
		return nil
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Save the API key used by the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		out := cmd.OutOrStdout()
		if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
			switch provider {
			case app.ProviderOpenAI, app.ProviderGemini, app.ProviderLocal:
			default:
				return fmt.Errorf("%w: %s", app.ErrUnknownProvider, provider)
			}
			application.CurrentProject.Config.LLM.Provider = provider
			if err := application.CurrentProject.SaveConfig(); err != nil {
				return fmt.Errorf("failed to save project config: %w", err)
			}
			fmt.Fprintf(out, "Provider set to %s.\n", provider)
		}
		if model, _ := cmd.Flags().GetString("model"); model != "" {
			application.CurrentProject.Config.LLM.Model = model
			if err := application.CurrentProject.SaveConfig(); err != nil {
				return fmt.Errorf("failed to save project config: %w", err)
			}
			fmt.Fprintf(out, "Model set to %s.\n", model)
		}

		if remove, _ := cmd.Flags().GetBool("clear"); remove {
			if err := application.SetAPIKey(""); err != nil {
				return err
			}
			fmt.Fprintln(out, "API key removed.")
			return nil
		}

		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			if cmd.Flags().Changed("provider") || cmd.Flags().Changed("model") {
				return nil
			}
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("API key").
						EchoMode(huh.EchoModePassword).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return errors.New("API key cannot be empty")
							}
							return nil
						}).
						Value(&key),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("API key input failed: %w", err)
			}
		}
		if err := application.SetAPIKey(strings.TrimSpace(key)); err != nil {
			return err
		}
		fmt.Fprintf(out, "API key %s saved.\n", maskAPIKey(strings.TrimSpace(key)))

		if settings, err := application.ProviderSettings(); err == nil {
			fmt.Fprintf(out, "Generating with %s (%s).\n", settings.Name, settings.Model)
		}
		return nil
	},
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change the global configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := app.NewConfigManager()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cm.Path())
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := app.NewConfigManager()
		if err != nil {
			return err
		}
		cfg, err := cm.LoadGlobalConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		for _, p := range cfg.Providers {
			if p != nil && p.APIKey != "" {
				p.APIKey = maskAPIKey(p.APIKey)
			}
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long:  "Change one setting. Keys:\n  " + strings.Join(app.SettableKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := app.NewConfigManager()
		if err != nil {
			return err
		}
		if err := cm.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated.\n", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the settings config set accepts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, key := range app.SettableKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
	},
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "List genres, writing styles, roles, plot points and endings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		styles := make([]string, len(novel.WritingStyles))
		for i, s := range novel.WritingStyles {
			styles[i] = s.Name
		}
		for _, group := range []struct {
			title  string
			values []string
		}{
			{"Genres", novel.Genres},
			{"Writing styles", styles},
			{"Character roles", novel.CharacterRoles},
			{"Plot points", novel.PlotPoints},
			{"Endings", novel.EndingTypes},
		} {
			fmt.Fprintf(out, "%s:\n  %s\n", group.title, strings.Join(group.values, "\n  "))
		}
	},
}

func init() {
	exportCmd.Flags().String("out", "", "Directory to write the export to (default: the project's exports directory)")
	resetCmd.Flags().Bool("all", false, "Also remove the saved API key and onboarding state")
	searchCmd.Flags().String("type", "", "Only match one type: reference, chapter, character, location, object")
	searchCmd.Flags().Int("limit", 10, "Maximum number of results")
	manuscriptCmd.Flags().String("format", storage.FormatMarkdown, "Output format: md, html, txt")
	manuscriptCmd.Flags().Bool("final-only", false, "Only include chapters marked final")
	manuscriptCmd.Flags().String("out", "", "Output file (default: the project's exports directory)")
	manuscriptCmd.Flags().String("title", "", "Manuscript title (default: the project name)")
	authCmd.Flags().String("key", "", "API key (prompted for when omitted)")
	authCmd.Flags().String("provider", "", "Provider for this project: openai, gemini, local")
	authCmd.Flags().String("model", "", "Model for this project")
	authCmd.Flags().Bool("clear", false, "Remove the saved API key")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(manuscriptCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(vocabCmd)
}
