package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
)

// AssetKind names a world-building entity type.
type AssetKind string

const (
	AssetCharacter AssetKind = "character"
	AssetLocation  AssetKind = "location"
	AssetObject    AssetKind = "object"
)

// ParseAssetKind maps a user-supplied kind to an AssetKind.
func ParseAssetKind(s string) (AssetKind, error) {
	switch k := AssetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case AssetCharacter, AssetLocation, AssetObject:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAssetKind, s)
	}
}

// Asset is an entity profile built from a description or an image.
// Exactly one of the pointers is set.
type Asset struct {
	Kind      AssetKind
	Character *novel.Character
	Location  *novel.Location
	Object    *novel.Object
}

// Actions adds the asset to the document.
func (a *Asset) Actions() []store.Action {
	switch {
	case a.Character != nil:
		return []store.Action{store.AddCharacter{Character: *a.Character}}
	case a.Location != nil:
		return []store.Action{store.AddLocation{Location: *a.Location}}
	case a.Object != nil:
		return []store.Action{store.AddObject{Object: *a.Object}}
	}
	return nil
}

type characterProfile struct {
	Name                 string `json:"name" validate:"required"`
	Role                 string `json:"role"`
	Gender               string `json:"gender"`
	Age                  string `json:"age"`
	Country              string `json:"country"`
	FaceDescription      string `json:"faceDescription"`
	HairDescription      string `json:"hairDescription"`
	ClothingDescription  string `json:"clothingDescription"`
	AccessoryDescription string `json:"accessoryDescription"`
	Height               string `json:"height"`
	Weight               string `json:"weight"`
	BodyShape            string `json:"bodyShape"`
}

func (p characterProfile) apply(c *novel.Character) {
	c.Name = strings.TrimSpace(p.Name)
	if novel.IsCharacterRole(p.Role) {
		c.Role = p.Role
	}
	c.Gender = p.Gender
	c.Age = p.Age
	c.Country = p.Country
	c.FaceDescription = p.FaceDescription
	c.HairDescription = p.HairDescription
	c.ClothingDescription = p.ClothingDescription
	c.AccessoryDescription = p.AccessoryDescription
	c.Height = p.Height
	c.Weight = p.Weight
	c.BodyShape = p.BodyShape
}

type placeProfile struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func characterProperties(full bool) map[string]llm.Schema {
	props := map[string]llm.Schema{
		"name":                 llm.String("The character's name."),
		"role":                 llm.Enum("The character's narrative role.", novel.CharacterRoles...),
		"gender":               llm.String(""),
		"age":                  llm.String("An age or an age range."),
		"faceDescription":      llm.String("Facial features and expression."),
		"hairDescription":      llm.String("Hair color, length and style."),
		"clothingDescription":  llm.String("What the character wears."),
		"accessoryDescription": llm.String("Jewelry, tools or other accessories."),
		"bodyShape":            llm.String("Build and posture."),
	}
	if full {
		props["country"] = llm.String("Country or culture of origin.")
		props["height"] = llm.String("")
		props["weight"] = llm.String("")
	}
	return props
}

var (
	characterSchema = llm.Object(characterProperties(false), "name", "role")

	placeSchema = llm.Object(map[string]llm.Schema{
		"name":        llm.String(""),
		"description": llm.String("A vivid description of two to four sentences."),
	}, "name", "description")
)

// AnalyzeAsset turns a text description or an image into an entity profile
// with a fresh id. Text descriptions must be at least MinDescriptionLength
// characters unless an image is given.
func (w *Writer) AnalyzeAsset(ctx context.Context, kind AssetKind, description string, image *llm.Image) (*Asset, error) {
	description = strings.TrimSpace(description)
	if image == nil && len([]rune(description)) < MinDescriptionLength {
		return nil, fmt.Errorf("%w: describe the %s in at least %d characters", ErrMissingInput, kind, MinDescriptionLength)
	}

	var schema llm.Schema
	switch kind {
	case AssetCharacter:
		schema = characterSchema
	case AssetLocation, AssetObject:
		schema = placeSchema
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAssetKind, kind)
	}

	lead := fmt.Sprintf("You are a world-building assistant for a novelist. Build a profile of the %s described below.", kind)
	if image != nil {
		lead = fmt.Sprintf("You are a world-building assistant for a novelist. Study the attached image and build a profile of the %s it shows.", kind)
	}
	p := newPrompt(lead).
		quoted("Description", description).
		bullets("Instructions",
			"Fill every field. Invent plausible details where the source is silent, consistent with what it does say.",
			"Reply only with JSON matching the provided schema.",
		)

	raw, err := w.gen.GenerateStructured(ctx, p.String(), schema, image)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", kind, err)
	}

	asset := &Asset{Kind: kind}
	switch kind {
	case AssetCharacter:
		var profile characterProfile
		if err := llm.Decode(raw, &profile); err != nil {
			return nil, err
		}
		c := w.ids.NewCharacter()
		profile.apply(&c)
		asset.Character = &c
	case AssetLocation:
		var profile placeProfile
		if err := llm.Decode(raw, &profile); err != nil {
			return nil, err
		}
		l := w.ids.NewLocation()
		l.Name, l.Description = strings.TrimSpace(profile.Name), profile.Description
		asset.Location = &l
	case AssetObject:
		var profile placeProfile
		if err := llm.Decode(raw, &profile); err != nil {
			return nil, err
		}
		o := w.ids.NewObject()
		o.Name, o.Description = strings.TrimSpace(profile.Name), profile.Description
		asset.Object = &o
	}
	return asset, nil
}

// Extraction reports the entities a passage mentions. New entities carry
// fresh ids and do not repeat an existing name.
type Extraction struct {
	Characters []novel.LinkID
	Locations  []novel.LinkID
	Objects    []novel.LinkID

	NewCharacters []novel.Character
	NewLocations  []novel.Location
	NewObjects    []novel.Object
}

// Actions adds the new entities to the document.
func (e *Extraction) Actions() []store.Action {
	var actions []store.Action
	for _, c := range e.NewCharacters {
		actions = append(actions, store.AddCharacter{Character: c})
	}
	for _, l := range e.NewLocations {
		actions = append(actions, store.AddLocation{Location: l})
	}
	for _, o := range e.NewObjects {
		actions = append(actions, store.AddObject{Object: o})
	}
	return actions
}

type extractionReport struct {
	MentionedCharacters []string           `json:"mentionedExistingCharacterNames"`
	MentionedLocations  []string           `json:"mentionedExistingLocationNames"`
	MentionedObjects    []string           `json:"mentionedExistingObjectNames"`
	NewCharacters       []characterProfile `json:"newCharacters" validate:"dive"`
	NewLocations        []placeProfile     `json:"newLocations" validate:"dive"`
	NewObjects          []placeProfile     `json:"newObjects" validate:"dive"`
}

var extractionSchema = llm.Object(map[string]llm.Schema{
	"mentionedExistingCharacterNames": llm.Array("Existing characters that appear or are mentioned.", llm.String("")),
	"mentionedExistingLocationNames":  llm.Array("Existing locations that appear or are mentioned.", llm.String("")),
	"mentionedExistingObjectNames":    llm.Array("Existing objects that appear or are mentioned.", llm.String("")),
	"newCharacters":                   llm.Array("Named characters not in the existing list.", llm.Object(characterProperties(true), "name")),
	"newLocations":                    llm.Array("Named locations not in the existing list.", placeSchema),
	"newObjects":                      llm.Array("Significant named objects not in the existing list.", placeSchema),
}, "mentionedExistingCharacterNames", "mentionedExistingLocationNames", "mentionedExistingObjectNames",
	"newCharacters", "newLocations", "newObjects")

// ExtractAssets finds the existing entities a passage mentions and profiles
// the new ones it introduces.
func (w *Writer) ExtractAssets(ctx context.Context, text string, doc novel.Document) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to extract from", ErrMissingInput)
	}

	characters := make([]string, len(doc.Characters))
	for i, c := range doc.Characters {
		characters[i] = c.Name
	}
	locations := make([]string, len(doc.Locations))
	for i, l := range doc.Locations {
		locations[i] = l.Name
	}
	objects := make([]string, len(doc.Objects))
	for i, o := range doc.Objects {
		objects[i] = o.Name
	}

	p := newPrompt("You are a story analyst. Read the chapter below and list the characters, locations and objects in it.").
		bullets("Existing entities",
			"Characters: "+orDefault(strings.Join(characters, ", "), "none"),
			"Locations: "+orDefault(strings.Join(locations, ", "), "none"),
			"Objects: "+orDefault(strings.Join(objects, ", "), "none"),
		).
		quoted("Chapter", text).
		bullets("Instructions",
			"Report existing entities by their exact name from the list above.",
			"Only report new entities that have a name and matter to the story. Never repeat an existing entity as new.",
			"Give new entities a full profile based on the chapter.",
			"Reply only with JSON matching the provided schema.",
		)

	raw, err := w.gen.GenerateStructured(ctx, p.String(), extractionSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to extract assets: %w", err)
	}
	var report extractionReport
	if err := llm.Decode(raw, &report); err != nil {
		return nil, err
	}
	return w.resolve(doc, report), nil
}

// resolve maps reported names onto existing ids and mints the new entities.
func (w *Writer) resolve(doc novel.Document, report extractionReport) *Extraction {
	ex := &Extraction{}

	chars := newLinkSet()
	known := make(map[string]int64, len(doc.Characters))
	for _, c := range doc.Characters {
		known[nameKey(c.Name)] = c.ID
	}
	for _, name := range report.MentionedCharacters {
		if id, ok := known[nameKey(name)]; ok {
			chars.add(id)
		}
	}
	for _, profile := range report.NewCharacters {
		key := nameKey(profile.Name)
		if id, ok := known[key]; ok {
			chars.add(id)
			continue
		}
		c := w.ids.NewCharacter()
		profile.apply(&c)
		known[key] = c.ID
		ex.NewCharacters = append(ex.NewCharacters, c)
		chars.add(c.ID)
	}
	ex.Characters = chars.links()

	locs := newLinkSet()
	known = make(map[string]int64, len(doc.Locations))
	for _, l := range doc.Locations {
		known[nameKey(l.Name)] = l.ID
	}
	for _, name := range report.MentionedLocations {
		if id, ok := known[nameKey(name)]; ok {
			locs.add(id)
		}
	}
	for _, profile := range report.NewLocations {
		key := nameKey(profile.Name)
		if id, ok := known[key]; ok {
			locs.add(id)
			continue
		}
		l := w.ids.NewLocation()
		l.Name, l.Description = strings.TrimSpace(profile.Name), profile.Description
		known[key] = l.ID
		ex.NewLocations = append(ex.NewLocations, l)
		locs.add(l.ID)
	}
	ex.Locations = locs.links()

	objs := newLinkSet()
	known = make(map[string]int64, len(doc.Objects))
	for _, o := range doc.Objects {
		known[nameKey(o.Name)] = o.ID
	}
	for _, name := range report.MentionedObjects {
		if id, ok := known[nameKey(name)]; ok {
			objs.add(id)
		}
	}
	for _, profile := range report.NewObjects {
		key := nameKey(profile.Name)
		if id, ok := known[key]; ok {
			objs.add(id)
			continue
		}
		o := w.ids.NewObject()
		o.Name, o.Description = strings.TrimSpace(profile.Name), profile.Description
		known[key] = o.ID
		ex.NewObjects = append(ex.NewObjects, o)
		objs.add(o.ID)
	}
	ex.Objects = objs.links()

	return ex
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// linkSet collects ids in insertion order without duplicates.
type linkSet struct {
	seen map[int64]bool
	ids  []int64
}

func newLinkSet() *linkSet {
	return &linkSet{seen: make(map[int64]bool)}
}

func (s *linkSet) add(ids ...int64) {
	for _, id := range ids {
		if !s.seen[id] {
			s.seen[id] = true
			s.ids = append(s.ids, id)
		}
	}
}

func (s *linkSet) links() []novel.LinkID {
	return novel.IDLinks(s.ids...)
}
