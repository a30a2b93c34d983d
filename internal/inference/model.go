package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"deviation-classifier-go/internal/types"
)

// Predictor turns narrative text into raw classification output keyed by
// field name. The output is untrusted and always rebuilt through
// types.ParseClassification.
type Predictor interface {
	Predict(text, location string) (map[string]any, error)
}

// Artifact is the serialized keyword model stored at MODEL_PATH.
type Artifact struct {
	Version string `json:"version"`

	// Categories are tried in order; the rule with the most keyword hits
	// wins and ties keep the earlier rule.
	Categories      []CategoryRule `json:"categories"`
	DefaultCategory int            `json:"default_category"`

	Severity ScoreRule `json:"severity"`
	Urgency  ScoreRule `json:"urgency"`
	Trend    ScoreRule `json:"trend"`

	BehaviorWords []string `json:"behavior_words"`

	RoutingByCategory map[int]int `json:"routing_by_category"`
	DefaultRouting    int         `json:"default_routing"`
}

type CategoryRule struct {
	Name     string   `json:"name"`
	Category int      `json:"category"`
	Keywords []string `json:"keywords"`
}

// ScoreRule scores a level as Base plus Step for every word found, capped at 1.
type ScoreRule struct {
	Base  float64  `json:"base"`
	Step  float64  `json:"step"`
	Words []string `json:"words"`
}

func (r ScoreRule) score(text string) float64 {
	s := r.Base + r.Step*float64(countHits(text, r.Words))
	s = math.Min(s, 1.0)
	return math.Round(s*100) / 100
}

// level maps a 0..1 score onto the five-step ordinal scale shared by
// severity, urgency and trend.
func level(score float64) int {
	switch {
	case score >= 0.8:
		return 5
	case score >= 0.6:
		return 4
	case score >= 0.4:
		return 3
	case score >= 0.2:
		return 2
	case score > 0:
		return 1
	default:
		return 0
	}
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// Predict implements Predictor. Location is accepted for interface
// compatibility with trained models; the keyword model ignores it.
func (a *Artifact) Predict(text, _ string) (map[string]any, error) {
	lower := strings.ToLower(text)

	category, best := a.DefaultCategory, 0
	for _, rule := range a.Categories {
		if hits := countHits(lower, rule.Keywords); hits > best {
			best, category = hits, rule.Category
		}
	}

	typ := int(types.TypeStructure)
	if countHits(lower, a.BehaviorWords) > 0 {
		typ = int(types.TypeBehavior)
	}

	routing, ok := a.RoutingByCategory[category]
	if !ok {
		routing = a.DefaultRouting
	}

	return map[string]any{
		types.FieldSeverity: level(a.Severity.score(lower)),
		types.FieldUrgency:  level(a.Urgency.score(lower)),
		types.FieldTrend:    level(a.Trend.score(lower)),
		types.FieldType:     typ,
		types.FieldRouting:  routing,
		types.FieldCategory: category,
	}, nil
}

// Validate checks that every code the artifact can emit is inside its domain.
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.Version) == "" {
		return fmt.Errorf("artifact has no version")
	}
	if !types.Category(a.DefaultCategory).Valid() {
		return fmt.Errorf("default_category %d out of domain", a.DefaultCategory)
	}
	if !types.Routing(a.DefaultRouting).Valid() {
		return fmt.Errorf("default_routing %d out of domain", a.DefaultRouting)
	}
	for _, rule := range a.Categories {
		if !types.Category(rule.Category).Valid() {
			return fmt.Errorf("category rule %q: code %d out of domain", rule.Name, rule.Category)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("category rule %q has no keywords", rule.Name)
		}
	}
	for cat, routing := range a.RoutingByCategory {
		if !types.Category(cat).Valid() || !types.Routing(routing).Valid() {
			return fmt.Errorf("routing %d -> %d out of domain", cat, routing)
		}
	}
	for name, r := range map[string]ScoreRule{"severity": a.Severity, "urgency": a.Urgency, "trend": a.Trend} {
		if r.Base < 0 || r.Base > 1 || r.Step < 0 || r.Step > 1 {
			return fmt.Errorf("%s: base and step must be within [0, 1]", name)
		}
	}
	return nil
}

// LoadArtifact reads and validates a keyword model from disk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

// Save writes the artifact as indented JSON.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// DefaultArtifact is the built-in keyword model with Portuguese and English
// vocabulary. English words that are substrings of a Portuguese keyword in
// the same rule are left out so a single mention is not counted twice.
func DefaultArtifact() *Artifact {
	return &Artifact{
		Version: "1.0.0-keywords",
		Categories: []CategoryRule{
			{Name: "EpiOrEpc", Category: int(types.CategoryEpiOrEpc), Keywords: []string{
				"perigo", "risco", "acidente", "lesão", "ferimento", "queda", "epi",
				"danger", "risk", "accident", "injury", "ppe",
			}},
			{Name: "Quality", Category: int(types.CategoryQuality), Keywords: []string{
				"defeito", "falha", "problema", "erro", "incorreto", "fora do padrão",
				"defect", "failure", "out of spec",
			}},
			{Name: "Environment", Category: int(types.CategoryEnvironment), Keywords: []string{
				"vazamento", "poluição", "resíduo", "contaminação", "meio ambiente",
				"leak", "pollution", "waste", "contamination", "spill",
			}},
			{Name: "Equipment", Category: int(types.CategoryEquipment), Keywords: []string{
				"máquina", "equipamento", "ferramenta", "dispositivo", "quebrado", "danificado",
				"machine", "equipment", "device", "broken", "damaged",
			}},
			{Name: "WorkRulesProceduresAndInstructions", Category: int(types.CategoryWorkRules), Keywords: []string{
				"processo", "procedimento", "operação", "regra",
				"procedure", "instruction", "rule",
			}},
			{Name: "Behavior", Category: int(types.CategoryBos), Keywords: []string{
				"conduta", "comportamento", "atitude", "negligência", "imprudência",
				"conduct", "behavior", "behaviour", "attitude", "negligence", "reckless",
			}},
		},
		DefaultCategory: int(types.CategoryOther),
		Severity: ScoreRule{Base: 0.3, Step: 0.15, Words: []string{
			"grave", "crítico", "urgente", "emergência", "perigo", "risco alto",
			"severe", "critical", "emergency", "danger",
		}},
		Urgency: ScoreRule{Base: 0.4, Step: 0.15, Words: []string{
			"imediato", "urgente", "rápido", "agora", "emergência",
			"immediate", "asap", "right away", "emergency",
		}},
		Trend: ScoreRule{Base: 0.3, Step: 0.15, Words: []string{
			"piorando", "agravando", "recorrente", "frequente", "aumentando",
			"worse", "recurring", "frequent", "spreading",
		}},
		BehaviorWords: []string{"comportamento", "atitude", "behavior", "behaviour", "attitude"},
		RoutingByCategory: map[int]int{
			int(types.CategoryEpiOrEpc):    int(types.RoutingUnit),
			int(types.CategoryEnvironment): int(types.RoutingEnvironmentAndQuality),
			int(types.CategoryQuality):     int(types.RoutingEnvironmentAndQuality),
			int(types.CategoryEquipment):   int(types.RoutingFacilities),
			int(types.CategoryBos):         int(types.RoutingFactory),
		},
		DefaultRouting: int(types.RoutingFactory),
	}
}
