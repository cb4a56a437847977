package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/azyu/novelcraft/internal/app"
	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/writer"
)

const (
	maxImageSize     = 10 << 20
	maxReferenceSize = 2 << 20
)

// generatedAsset builds an asset profile from --describe and --image. It
// returns nil when neither flag is set.
func generatedAsset(cmd *cobra.Command, application *app.App, kind writer.AssetKind) (*writer.Asset, error) {
	describe, _ := cmd.Flags().GetString("describe")
	imagePath, _ := cmd.Flags().GetString("image")
	if describe == "" && imagePath == "" {
		return nil, nil
	}

	var image *llm.Image
	if imagePath != "" {
		data, err := storage.ReadFileLimited(imagePath, maxImageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		mt := mimetype.Detect(data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", imagePath, mt.String())
		}
		image = &llm.Image{MIMEType: mt.String(), Data: data}
	}

	w, err := application.Writer(cmd.Context())
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %s...\n", kind)
	return w.AnalyzeAsset(cmd.Context(), kind, describe, image)
}

func addAssetFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Name")
	cmd.Flags().String("describe", "", "Free-text description to build the profile from")
	cmd.Flags().String("image", "", "Image to build the profile from")
}

var characterCmd = &cobra.Command{
	Use:     "character",
	Aliases: []string{"characters"},
	Short:   "Manage the cast",
}

var characterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		printCharacters(cmd.OutOrStdout(), application.Store.Document().Characters)
		return nil
	},
}

func printCharacters(out io.Writer, characters []novel.Character) {
	if len(characters) == 0 {
		fmt.Fprintln(out, "No characters yet.")
		return
	}
	for i, c := range characters {
		details := make([]string, 0, 3)
		for _, v := range []string{c.Gender, c.Age, c.Country} {
			if v != "" {
				details = append(details, v)
			}
		}
		line := fmt.Sprintf("%2d. %s (%s)", i+1, c.Name, c.Role)
		if len(details) > 0 {
			line += " - " + strings.Join(details, ", ")
		}
		fmt.Fprintln(out, line)
	}
}

var characterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a character by hand or from a description or image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		if role != "" && !novel.IsCharacterRole(role) {
			return fmt.Errorf("unknown role %q, expected one of: %s", role, strings.Join(novel.CharacterRoles, ", "))
		}

		asset, err := generatedAsset(cmd, application, writer.AssetCharacter)
		if err != nil {
			return err
		}

		var c novel.Character
		if asset != nil {
			c = *asset.Character
		} else {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required without --describe or --image")
			}
			c = novel.NewCharacter()
		}
		if name != "" {
			c.Name = strings.TrimSpace(name)
		}
		if role != "" {
			c.Role = role
		}
		for flag, dst := range map[string]*string{"gender": &c.Gender, "age": &c.Age, "country": &c.Country} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				*dst = v
			}
		}

		application.Store.Dispatch(store.AddCharacter{Character: c})
		fmt.Fprintf(cmd.OutOrStdout(), "Added character %s (%s).\n", c.Name, c.Role)
		return nil
	},
}

var characterRoleCmd = &cobra.Command{
	Use:   "role <number> <role>",
	Short: "Change a character's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		characters := application.Store.Document().Characters
		i, err := position(args[0], len(characters), "character")
		if err != nil {
			return err
		}
		if !novel.IsCharacterRole(args[1]) {
			return fmt.Errorf("unknown role %q, expected one of: %s", args[1], strings.Join(novel.CharacterRoles, ", "))
		}
		c := characters[i]
		c.Role = args[1]
		application.Store.Dispatch(store.UpdateCharacter{Index: i, Character: c})
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s.\n", c.Name, c.Role)
		return nil
	},
}

var characterDeleteCmd = &cobra.Command{
	Use:   "delete <number>",
	Short: "Delete a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		characters := application.Store.Document().Characters
		i, err := position(args[0], len(characters), "character")
		if err != nil {
			return err
		}
		ok, err := confirm(cmd, fmt.Sprintf("Delete %s?", characters[i].Name), "Chapters that link this character keep a broken link.")
		if err != nil || !ok {
			return err
		}
		application.Store.Dispatch(store.DeleteCharacter{Index: i})
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", characters[i].Name)
		return nil
	},
}

// place abstracts locations and objects, which share a shape.
type place struct {
	kind  writer.AssetKind
	items func(novel.Document) [][2]string
	add   func(name, description string, asset *writer.Asset) (store.Action, string)
	del   func(i int) store.Action
}

var places = []place{
	{
		kind: writer.AssetLocation,
		items: func(doc novel.Document) [][2]string {
			out := make([][2]string, len(doc.Locations))
			for i, l := range doc.Locations {
				out[i] = [2]string{l.Name, l.Description}
			}
			return out
		},
		add: func(name, description string, asset *writer.Asset) (store.Action, string) {
			l := novel.NewLocation()
			if asset != nil {
				l = *asset.Location
			}
			if name != "" {
				l.Name = name
			}
			if description != "" {
				l.Description = description
			}
			return store.AddLocation{Location: l}, l.Name
		},
		del: func(i int) store.Action { return store.DeleteLocation{Index: i} },
	},
	{
		kind: writer.AssetObject,
		items: func(doc novel.Document) [][2]string {
			out := make([][2]string, len(doc.Objects))
			for i, o := range doc.Objects {
				out[i] = [2]string{o.Name, o.Description}
			}
			return out
		},
		add: func(name, description string, asset *writer.Asset) (store.Action, string) {
			o := novel.NewObject()
			if asset != nil {
				o = *asset.Object
			}
			if name != "" {
				o.Name = name
			}
			if description != "" {
				o.Description = description
			}
			return store.AddObject{Object: o}, o.Name
		},
		del: func(i int) store.Action { return store.DeleteObject{Index: i} },
	},
}

// placeCommand builds the list/add/delete tree for a location-like entity.
func placeCommand(p place) *cobra.Command {
	kind := string(p.kind)
	parent := &cobra.Command{
		Use:     kind,
		Aliases: []string{kind + "s"},
		Short:   fmt.Sprintf("Manage %ss", kind),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openProject(cmd, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			items := p.items(application.Store.Document())
			if len(items) == 0 {
				fmt.Fprintf(out, "No %ss yet.\n", kind)
				return nil
			}
			for i, item := range items {
				fmt.Fprintf(out, "%2d. %s", i+1, item[0])
				if item[1] != "" {
					fmt.Fprintf(out, " - %s", firstLine(item[1]))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: fmt.Sprintf("Add a %s by hand or from a description or image", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openProject(cmd, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			asset, err := generatedAsset(cmd, application, p.kind)
			if err != nil {
				return err
			}
			if asset == nil && strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required without --describe or --image")
			}

			action, added := p.add(strings.TrimSpace(name), strings.TrimSpace(description), asset)
			application.Store.Dispatch(action)
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s.\n", kind, added)
			return nil
		},
	}
	addAssetFlags(add)
	add.Flags().String("description", "", "Description")

	del := &cobra.Command{
		Use:   "delete <number>",
		Short: fmt.Sprintf("Delete a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openProject(cmd, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			items := p.items(application.Store.Document())
			i, err := position(args[0], len(items), kind)
			if err != nil {
				return err
			}
			ok, err := confirm(cmd, fmt.Sprintf("Delete %s?", items[i][0]), "Chapters that link it keep a broken link.")
			if err != nil || !ok {
				return err
			}
			application.Store.Dispatch(p.del(i))
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", items[i][0])
			return nil
		},
	}

	parent.AddCommand(list, add, del)
	return parent
}

var referenceCmd = &cobra.Command{
	Use:     "reference",
	Aliases: []string{"references"},
	Short:   "Manage reference material handed to the writer",
}

var referenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		out := cmd.OutOrStdout()
		refs := application.Store.Document().References
		if len(refs) == 0 {
			fmt.Fprintln(out, "No references yet.")
			return nil
		}
		for i, r := range refs {
			fmt.Fprintf(out, "%2d. %s (%d words)\n", i+1, r.Title, len(strings.Fields(r.Content)))
		}
		return nil
	},
}

var referenceAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a reference from --content or --file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		path, _ := cmd.Flags().GetString("file")
		if path != "" {
			data, err := storage.ReadFileLimited(path, maxReferenceSize)
			if err != nil {
				return fmt.Errorf("failed to read reference: %w", err)
			}
			content = string(data)
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("reference content is empty, pass --content or --file")
		}

		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		ref := novel.NewReference()
		ref.Title = strings.TrimSpace(args[0])
		ref.Content = content
		application.Store.Dispatch(store.AddReference{Reference: ref})
		fmt.Fprintf(cmd.OutOrStdout(), "Added reference %s.\n", ref.Title)
		return nil
	},
}

var referenceDeleteCmd = &cobra.Command{
	Use:   "delete <number>",
	Short: "Delete a reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openProject(cmd, nil)
		if err != nil {
			return err
		}
		defer application.Close()

		refs := application.Store.Document().References
		i, err := position(args[0], len(refs), "reference")
		if err != nil {
			return err
		}
		application.Store.Dispatch(store.DeleteReference{Index: i})
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted reference %s.\n", refs[i].Title)
		return nil
	},
}

func init() {
	addAssetFlags(characterAddCmd)
	characterAddCmd.Flags().String("role", "", "Role: "+strings.Join(novel.CharacterRoles, ", "))
	characterAddCmd.Flags().String("gender", "", "Gender")
	characterAddCmd.Flags().String("age", "", "Age")
	characterAddCmd.Flags().String("country", "", "Country")
	characterCmd.AddCommand(characterListCmd)
	characterCmd.AddCommand(characterAddCmd)
	characterCmd.AddCommand(characterRoleCmd)
	characterCmd.AddCommand(characterDeleteCmd)
	rootCmd.AddCommand(characterCmd)

	for _, p := range places {
		rootCmd.AddCommand(placeCommand(p))
	}

	referenceAddCmd.Flags().String("content", "", "Reference text")
	referenceAddCmd.Flags().String("file", "", "Read the reference text from a file")
	referenceCmd.AddCommand(referenceListCmd)
	referenceCmd.AddCommand(referenceAddCmd)
	referenceCmd.AddCommand(referenceDeleteCmd)
	rootCmd.AddCommand(referenceCmd)
}
