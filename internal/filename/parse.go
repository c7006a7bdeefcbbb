package filename

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Delimiter separates the fields of a conforming archive name:
//
//	category__group__world_name__version.tar.xz
const Delimiter = "__"

// Form tells which branch of the naming grammar a name was decoded with.
type Form int

const (
	// FormLegacy names carry no delimiter at all.
	FormLegacy Form = iota
	// FormShort names look like category_version__world.
	FormShort
	// FormFull names look like category__group__world[__version].
	FormFull
)

func (f Form) String() string {
	switch f {
	case FormFull:
		return "full"
	case FormShort:
		return "short"
	}
	return "legacy"
}

const (
	unknownField = "unknown"
	defaultGroup = "default"
	defaultWorld = "default"
)

// Metadata is everything derivable from an archive name alone.
type Metadata struct {
	Extension     string
	Form          Form
	CategoryToken string
	Category      string
	Group         string
	WorldName     string
	// Version is empty when the name carries none.
	Version     string
	DisplayName string
	Description string
	Tags        []string
}

// Categories maps category tokens to display names. Tokens missing from the
// table are shown as-is.
var Categories = map[string]string{
	"atm":               "All The Mods",
	"create":            "Create",
	"stoneblock":        "Stoneblock",
	"tekkit":            "Tekkit",
	"technic":           "Technic",
	"sf":                "SkyFactory",
	"skyfactory":        "SkyFactory",
	"project_architect": "Project Architect",
	"ftb":               "Feed The Beast",
	"fts":               "Feed The Beast",
	"curs":              "CurseForge",
	"mojang":            "Vanilla",
	"vanilla":           "Vanilla",
	"tandem":            "Custom",
	"mod":               "Modded",
	"unknown":           "Unknown",
}

type tagRule struct {
	keyword string
	tag     string
}

var tagRules = []tagRule{
	{"atm", "modded"},
	{"allthemods", "modded"},
	{"create", "engineering"},
	{"tech", "technology"},
	{"magic", "magic"},
	{"sky", "skyblock"},
	{"stone", "challenge"},
}

var acronyms = map[string]string{
	"Atm": "ATM",
	"Sf":  "SF",
	"Tts": "TTS",
	"Jei": "JEI",
	"Ftb": "FTB",
}

// Parse decodes a validated archive name. The result depends on name only.
func Parse(name string) Metadata {
	ext := Extension(name)
	stem := name[:len(name)-len(ext)]

	m := Metadata{Extension: ext}

	parts := strings.Split(stem, Delimiter)
	switch {
	case len(parts) >= 3:
		m.Form = FormFull
		m.CategoryToken = orDefault(parts[0], unknownField)
		m.Group = orDefault(parts[1], unknownField)
		m.WorldName = orDefault(parts[2], defaultWorld)
		if len(parts) > 3 {
			m.Version = parts[3]
		}
	case len(parts) == 2:
		m.Form = FormShort
		head := parts[0]
		if i := strings.LastIndex(head, "_"); i >= 0 {
			m.CategoryToken = orDefault(head[:i], unknownField)
			m.Version = head[i+1:]
		} else {
			m.CategoryToken = orDefault(head, unknownField)
		}
		m.Group = defaultGroup
		m.WorldName = orDefault(parts[1], defaultWorld)
	default:
		m.Form = FormLegacy
		m.CategoryToken = unknownField
		m.Group = unknownField
		m.WorldName = stem
	}

	m.Category = CategoryName(m.CategoryToken)
	m.DisplayName = DisplayName(m.WorldName)
	m.Description = describe(m.Category, m.Group, m.Version)
	m.Tags = Tags(name)
	return m
}

// CategoryName resolves a category token through Categories.
func CategoryName(token string) string {
	if name, ok := Categories[strings.ToLower(token)]; ok {
		return name
	}
	return token
}

// DisplayName turns a world-name field into a human title:
// "my_atm_world" becomes "My ATM World".
func DisplayName(world string) string {
	spaced := strings.Join(strings.Fields(strings.ReplaceAll(world, "_", " ")), " ")
	if spaced == "" {
		return ""
	}
	// Casers keep state, one per call.
	titled := cases.Title(language.English).String(spaced)
	words := strings.Split(titled, " ")
	for i, w := range words {
		if up, ok := acronyms[w]; ok {
			words[i] = up
		}
	}
	return strings.Join(words, " ")
}

// Tags derives keyword tags from the full archive name.
func Tags(name string) []string {
	lower := strings.ToLower(name)
	tags := make([]string, 0, 2)
	seen := make(map[string]struct{}, len(tagRules))
	for _, r := range tagRules {
		if _, dup := seen[r.tag]; dup {
			continue
		}
		if strings.Contains(lower, r.keyword) {
			tags = append(tags, r.tag)
			seen[r.tag] = struct{}{}
		}
	}
	return tags
}

func describe(category, group, version string) string {
	desc := category + " - " + strings.ReplaceAll(group, "_", " ")
	if version != "" {
		desc += " (" + version + ")"
	}
	return desc
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
