package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"biblio/internal"
)

type Strategy string

const (
	StrategyKeyword    Strategy = "keyword"
	StrategyPositional Strategy = "positional"
)

const (
	// SheetFirst selects the first sheet of the workbook.
	SheetFirst = ""
	// SheetAll selects every sheet of the workbook.
	SheetAll = "*"
)

type OwnerBlock struct {
	Owner      string           `json:"owner,omitempty"`
	Category   string           `json:"category,omitempty"`
	Start      int              `json:"start,omitempty"`
	Fields     []internal.Field `json:"fields,omitempty"`
	Occurrence int              `json:"occurrence,omitempty"`
	Optional   bool             `json:"optional,omitempty"`
}

type SheetPlan struct {
	Sheet    string                      `json:"sheet,omitempty"`
	Needles  []string                    `json:"needles,omitempty"`
	Category string                      `json:"category,omitempty"`
	Strategy Strategy                    `json:"strategy,omitempty"`
	Strict   bool                        `json:"strict,omitempty"`
	Blocks   []OwnerBlock                `json:"blocks,omitempty"`
	Keywords map[internal.Field]Keywords `json:"keywords,omitempty"`
}

type Profile struct {
	Name   string      `json:"name"`
	Sheets []SheetPlan `json:"sheets"`
}

var householdLeft = []internal.Field{
	internal.FieldAuthor,
	internal.FieldTitle,
	internal.FieldLanguage,
	internal.FieldRead,
	internal.FieldKept,
	internal.FieldPublisher,
}

var householdRight = []internal.Field{
	internal.FieldAuthor,
	internal.FieldTitle,
	internal.FieldLanguage,
}

var builtinProfiles = map[string]Profile{
	"clean": {
		Name: "clean",
		Sheets: []SheetPlan{{
			Sheet:    SheetFirst,
			Needles:  []string{"titre"},
			Strategy: StrategyKeyword,
			Keywords: map[internal.Field]Keywords{
				internal.FieldOwner:     {Equals: []string{"owner"}},
				internal.FieldCategory:  {Equals: []string{"type"}},
				internal.FieldAuthor:    {Equals: []string{"auteur"}},
				internal.FieldTitle:     {Equals: []string{"titre"}},
				internal.FieldLanguage:  {Equals: []string{"langue"}},
				internal.FieldRead:      {Equals: []string{"lu"}},
				internal.FieldKept:      {Equals: []string{"garde"}},
				internal.FieldPublisher: {Equals: []string{"edition"}},
				internal.FieldISBN:      {Equals: []string{"isbn"}},
			},
		}},
	},
	"keyword": {
		Name: "keyword",
		Sheets: []SheetPlan{{
			Sheet:    SheetAll,
			Needles:  []string{"titre", "title"},
			Strategy: StrategyKeyword,
		}},
	},
	"household": {
		Name: "household",
		Sheets: []SheetPlan{
			{
				Sheet:    "Livres",
				Needles:  []string{"titre"},
				Category: "Livre",
				Strategy: StrategyKeyword,
				Blocks: []OwnerBlock{
					{Owner: "CAROLE", Occurrence: 0},
					{Owner: "NILS", Occurrence: 1, Optional: true},
				},
			},
			{
				Sheet:    "BD",
				Needles:  []string{"bd", "titre"},
				Category: "BD",
				Strategy: StrategyKeyword,
				Blocks:   []OwnerBlock{{Owner: "NILS"}},
			},
		},
	},
	"blocks": {
		Name: "blocks",
		Sheets: []SheetPlan{{
			Sheet:    SheetFirst,
			Category: "Livre",
			Strategy: StrategyPositional,
			Blocks: []OwnerBlock{
				{Owner: "CAROLE", Start: 0, Fields: householdLeft},
				{Owner: "NILS", Start: 7, Fields: householdRight},
				{Owner: "AXEL", Start: 14, Fields: householdRight},
			},
		}},
	},
}

func BuiltinProfiles() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func BuiltinProfile(name string) (Profile, bool) {
	p, ok := builtinProfiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ResolveProfile returns a built-in profile by name, or loads a JSON profile
// from the given path.
func ResolveProfile(nameOrPath string) (Profile, error) {
	if p, ok := BuiltinProfile(nameOrPath); ok {
		return p, nil
	}
	if strings.HasSuffix(strings.ToLower(nameOrPath), ".json") {
		return LoadProfile(nameOrPath)
	}
	return Profile{}, fmt.Errorf("unknown profile %q (built-in: %s)", nameOrPath, strings.Join(BuiltinProfiles(), ", "))
}

func LoadProfile(path string) (Profile, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(blob, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(path, ".json")
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) Validate() error {
	if len(p.Sheets) == 0 {
		return fmt.Errorf("profile %q: no sheets", p.Name)
	}
	for i, sp := range p.Sheets {
		switch sp.Strategy {
		case StrategyKeyword, "":
		case StrategyPositional:
			if len(sp.Blocks) == 0 {
				return fmt.Errorf("profile %q sheet #%d: %w", p.Name, i, ErrNoBlocks)
			}
			for _, b := range sp.Blocks {
				if b.Owner == "" {
					return fmt.Errorf("profile %q sheet #%d: positional block needs an owner", p.Name, i)
				}
				if b.Start < 0 || !slices.Contains(b.Fields, internal.FieldTitle) {
					return fmt.Errorf("profile %q sheet #%d: block %s needs a title column", p.Name, i, b.Owner)
				}
			}
		default:
			return fmt.Errorf("profile %q sheet #%d: unknown strategy %q", p.Name, i, sp.Strategy)
		}
	}
	return nil
}
