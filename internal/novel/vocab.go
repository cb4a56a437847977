package novel

import "slices"

// Plot point labels, in narrative order.
const (
	PlotPointUnset            = "unset"
	PlotPointIntroduction     = "introduction"
	PlotPointIncitingIncident = "inciting incident"
	PlotPointRisingAction     = "rising action"
	PlotPointMidpoint         = "midpoint"
	PlotPointClimax           = "climax"
	PlotPointFallingAction    = "falling action"
	PlotPointResolution       = "resolution"
)

// PlotPoints lists the plot point vocabulary in narrative order.
var PlotPoints = []string{
	PlotPointUnset,
	PlotPointIntroduction,
	PlotPointIncitingIncident,
	PlotPointRisingAction,
	PlotPointMidpoint,
	PlotPointClimax,
	PlotPointFallingAction,
	PlotPointResolution,
}

// RoleUnset is the role of a character nobody has cast yet.
const RoleUnset = "unset"

// CharacterRoles lists the narrative roles a character can take.
var CharacterRoles = []string{
	RoleUnset,
	"protagonist",
	"antagonist",
	"deuteragonist",
	"tritagonist",
	"supporting",
	"extra",
	"main character",
	"main enemy",
	"mentor",
	"anti-hero",
}

// EndingTypes lists the endings offered in the plot blueprint.
var EndingTypes = []string{"Happy Ending", "Tragic Ending", "Cliffhanger", "Bittersweet"}

// Genres lists the genres offered in the wizard.
var Genres = []string{
	"Fantasy",
	"Science Fiction (Sci-Fi)",
	"Mystery",
	"Thriller",
	"Horror",
	"Romance",
	"Adventure",
	"Historical Fiction",
	"Dystopia",
	"Utopia",
	"Cyberpunk",
	"Steampunk",
	"Urban Fantasy",
	"Paranormal",
	"Speculative Fiction",
	"Contemporary Fiction",
	"Literary Fiction",
}

// WritingStyle is an author voice the generator imitates.
type WritingStyle struct {
	Name        string
	Description string
}

// DefaultWritingStyle is preselected on new projects.
const DefaultWritingStyle = "J.K. Rowling Style"

// WritingStyles lists the author voices offered in the wizard.
var WritingStyles = []WritingStyle{
	{Name: DefaultWritingStyle, Description: "Descriptive, effective and dramatic. Great at immersive worldbuilding and memorable characters."},
	{Name: "Tere Liye Style", Description: "Simple, heartfelt and full of moral messages. Flows smoothly and is easy to follow."},
	{Name: "Dee Lestari Style", Description: "Poetic, philosophical and intellectual. Often uses complex metaphors and rich sentence structure."},
	{Name: "Agatha Christie Style", Description: "Plot-driven, suspenseful, with clever twists. Clean, on-point prose."},
	{Name: "Sir Arthur Conan Doyle Style", Description: "Formal, detailed and logical. Focused on sharp observation and deductive reasoning."},
	{Name: "Stephen King Style", Description: "Everyday language, deep inner monologue and slow-building tension. A master of psychological horror."},
	{Name: "Gillian Flynn Style", Description: "Dark and psychological, often with unreliable narrators. Sharp, cynical prose."},
	{Name: "H.P. Lovecraft Style", Description: "Adjective-rich cosmic horror that builds dread of the unknown."},
	{Name: "Jane Austen Style", Description: "Witty and satirical, focused on social commentary and character relationships. Elegant prose."},
	{Name: "Ilana Tan Style", Description: "Light and romantic with naturally flowing dialogue. Popular for young adult fiction and romance."},
	{Name: "J.R.R. Tolkien Style", Description: "Epic and highly descriptive with a formal tone. Deep worlds with rich history and mythology."},
	{Name: "Andrea Hirata Style", Description: "Poetic with a touch of magical realism. Very strong at evoking place and atmosphere."},
	{Name: "Pramoedya Ananta Toer Style", Description: "Historical and realistic with strong social and political commentary. A powerful, authoritative narrative voice."},
}

// StorySeeds holds opening scene and inciting incident suggestions for a genre.
type StorySeeds struct {
	Openings  []string
	Incidents []string
}

// DefaultGenreKey selects the fallback entry of the genre tables.
const DefaultGenreKey = "Default"

var genreSeeds = map[string]StorySeeds{
	"Fantasy": {
		Openings:  []string{"An ancient artifact is discovered.", "A prophecy is revealed.", "A portal to another world opens.", "A sacred ceremony is disrupted."},
		Incidents: []string{"A loved one is kidnapped.", "The kingdom is attacked.", "Chosen to carry a relic.", "A magical disaster strikes."},
	},
	"Science Fiction (Sci-Fi)": {
		Openings:  []string{"A strange signal from deep space.", "An experiment goes wrong.", "Waking up from cryosleep.", "An alien ship lands."},
		Incidents: []string{"An AI takes over.", "An alien plague spreads.", "A corporate conspiracy is exposed.", "A time anomaly threatens all life."},
	},
	"Mystery": {
		Openings:  []string{"A body is found.", "A mysterious client arrives.", "An inheritance holds a riddle.", "Witnessing a crime."},
		Incidents: []string{"A strange clue turns up.", "A key witness disappears.", "A threat is received.", "The suspect has a perfect alibi."},
	},
	"Thriller": {
		Openings:  []string{"A mysterious phone call.", "Realizing you are being followed.", "An anonymous package arrives.", "News that mirrors a nightmare."},
		Incidents: []string{"Accused of a crime you did not commit.", "A family member is taken hostage.", "A government secret is exposed.", "Time is running out."},
	},
	DefaultGenreKey: {
		Openings:  []string{"Something unexpected happens.", "A chance encounter.", "An extraordinary morning.", "A defining decision."},
		Incidents: []string{"A journey begins.", "A secret is revealed.", "A new danger emerges.", "A challenge is issued."},
	},
}

// SeedsForGenre returns the opening and incident suggestions for genre,
// falling back to the default entry. The returned slices are copies.
func SeedsForGenre(genre string) StorySeeds {
	seeds, ok := genreSeeds[genre]
	if !ok {
		seeds = genreSeeds[DefaultGenreKey]
	}
	return StorySeeds{
		Openings:  append([]string(nil), seeds.Openings...),
		Incidents: append([]string(nil), seeds.Incidents...),
	}
}

var writingPrompts = map[string][]string{
	"Fantasy": {
		"What is the unique magic system of your world, and what are its limits?",
		"Describe the ancient artifact at the heart of your story. Where did it come from and why does it matter?",
		"If your protagonist could speak with one mythical creature, what would they ask?",
		"What is the history of the conflict between the two main kingdoms of your story?",
		"What is the most important holiday or festival in your culture, and why?",
	},
	"Science Fiction (Sci-Fi)": {
		"Which technology has the biggest impact on society in your story, and what is its downside?",
		"Describe humanity's first meeting with a newly discovered alien species.",
		"What ethical dilemma does AI progress raise in your world?",
		"How does interstellar travel affect human psychology and physiology?",
		"What is the scarcest resource in the galaxy, and which factions fight over it?",
	},
	"Mystery": {
		"What is the cleverest red herring you will plant early in the story?",
		"How was the detective connected to the victim before the murder?",
		"Describe the crime scene from the point of view of an unreliable witness.",
		"What secret does your lead detective hide from their colleagues?",
		"Besides money or revenge, what motive could drive your villain?",
	},
	"Thriller": {
		"How does your protagonist accidentally put themselves in danger?",
		"The clock is ticking. What terrifying deadline must your hero meet?",
		"What is your protagonist's greatest fear, and how does the villain exploit it?",
		"Describe a chase scene in an unusual place, such as a silent library or an abandoned amusement park.",
		"What twist will make readers question everything they thought they knew?",
	},
	"Horror": {
		"What sound does your protagonist keep hearing when they are alone?",
		"Describe an ordinary household object that suddenly becomes a source of fear.",
		"How does a local urban legend turn out to be real for your character?",
		"Which childhood fear comes back to haunt your protagonist as an adult?",
		"Describe an entity that cannot be seen but whose presence is clearly felt.",
	},
	"Romance": {
		"How does the awkward first meeting between the two leads go?",
		"What big misunderstanding drives the couple apart?",
		"Describe a romantic gesture that fails completely but strengthens their bond anyway.",
		"What secret does one partner hide from the other for fear of rejection?",
		"In what thoroughly unromantic place do they realize how they feel about each other?",
	},
	DefaultGenreKey: {
		"What is the worst decision your protagonist ever made?",
		"Describe a defining moment of your main character's childhood.",
		"What does your character want most in the world, and what will they sacrifice for it?",
		"How does the setting mirror your protagonist's inner emotional state?",
		"Who is your main character's mentor or role model, and what is the most important lesson they taught?",
	},
}

// WritingPromptsForGenre returns brainstorming questions for genre,
// falling back to the default entry.
func WritingPromptsForGenre(genre string) []string {
	prompts, ok := writingPrompts[genre]
	if !ok {
		prompts = writingPrompts[DefaultGenreKey]
	}
	return append([]string(nil), prompts...)
}

// IsPlotPoint reports whether label belongs to the plot point vocabulary.
func IsPlotPoint(label string) bool {
	return slices.Contains(PlotPoints, label)
}

// IsCharacterRole reports whether role belongs to the role vocabulary.
func IsCharacterRole(role string) bool {
	return slices.Contains(CharacterRoles, role)
}
