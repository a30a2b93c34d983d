package types

import (
	"fmt"
	"strings"
)

// Field keys of the flat classification encoding, in canonical order.
const (
	FieldSeverity = "severity"
	FieldUrgency  = "urgency"
	FieldTrend    = "trend"
	FieldType     = "type"
	FieldRouting  = "routing"
	FieldCategory = "category"
)

// Severity is the gravity of a deviation.
type Severity int

const (
	SeverityNotDefined Severity = iota
	SeverityNone
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityExtreme
)

// Urgency is how quickly the deviation needs a response.
type Urgency int

const (
	UrgencyNotDefined Urgency = iota
	UrgencyCanWait
	UrgencyNotVeryUrgent
	UrgencyAsSoonAsPossible
	UrgencyUrgent
	UrgencyNeedsImmediateAction
)

// Trend is the likelihood of recurrence or worsening.
type Trend int

const (
	TrendNotDefined Trend = iota
	TrendNone
	TrendWorseLongTerm
	TrendWillGetWorse
	TrendWorseShortTerm
	TrendWorseQuickly
)

type DeviationType int

const (
	TypeNotDefined DeviationType = iota
	TypeBehavior
	TypeStructure
)

// Routing is the team the deviation is directed to.
type Routing int

const (
	RoutingNotDefined Routing = iota
	RoutingFactory
	RoutingUnit
	RoutingFacilities
	RoutingEnvironmentAndQuality
)

type Category int

const (
	CategoryNotDefined Category = iota
	CategoryEpiOrEpc
	CategoryBos
	CategoryOrderAndCleanliness
	CategoryEquipment
	CategoryErgonomics
	CategoryTraffic
	CategoryEnvironment
	CategoryQuality
	CategoryWorkRules
	CategoryMobileEquipment
	CategoryToolsAndEquipment
	CategoryOther
)

// Domain is the closed, ordered set of legal codes for one field. The code of
// a value is its index in Names.
type Domain struct {
	Field string
	Names []string
}

func (d Domain) Contains(code int) bool { return code >= 0 && code < len(d.Names) }

func (d Domain) Name(code int) string {
	if !d.Contains(code) {
		return fmt.Sprintf("%s(%d)", d.Field, code)
	}
	return d.Names[code]
}

// Legend lists every legal value as "0=NotDefined, 1=...".
func (d Domain) Legend() string {
	parts := make([]string, len(d.Names))
	for i, n := range d.Names {
		parts[i] = fmt.Sprintf("%d=%s", i, n)
	}
	return strings.Join(parts, ", ")
}

var domains = [...]Domain{
	{FieldSeverity, []string{"NotDefined", "NoGravity", "LowGravity", "MediumGravity", "HighGravity", "ExtremeGravity"}},
	{FieldUrgency, []string{"NotDefined", "CanWait", "NotVeryUrgent", "AsSoonAsPossible", "Urgent", "NeedsImmediateAction"}},
	{FieldTrend, []string{"NotDefined", "NoTrend", "WillGetWorseInTheLongTerm", "WillGetWorse", "WillGetWorseInTheShortTerm", "WillGetWorseQuickly"}},
	{FieldType, []string{"NotDefined", "Behavior", "Structure"}},
	{FieldRouting, []string{"NotDefined", "Factory", "Unit", "Facilities", "EnvironmentAndQuality"}},
	{FieldCategory, []string{
		"NotDefined", "EpiOrEpc", "Bos", "OrderAndCleanlinessFiveS", "Equipment", "Ergonomics",
		"TrafficOfVehiclesAndPeople", "Environment", "Quality", "WorkRulesProceduresAndInstructions",
		"MobileEquipment", "ToolsAndEquipment", "Other",
	}},
}

// Domains returns the six field domains in canonical order.
func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains[:])
	return out
}

func (s Severity) Valid() bool         { return domains[0].Contains(int(s)) }
func (s Severity) String() string      { return domains[0].Name(int(s)) }
func (u Urgency) Valid() bool          { return domains[1].Contains(int(u)) }
func (u Urgency) String() string       { return domains[1].Name(int(u)) }
func (t Trend) Valid() bool            { return domains[2].Contains(int(t)) }
func (t Trend) String() string         { return domains[2].Name(int(t)) }
func (t DeviationType) Valid() bool    { return domains[3].Contains(int(t)) }
func (t DeviationType) String() string { return domains[3].Name(int(t)) }
func (r Routing) Valid() bool          { return domains[4].Contains(int(r)) }
func (r Routing) String() string       { return domains[4].Name(int(r)) }
func (c Category) Valid() bool         { return domains[5].Contains(int(c)) }
func (c Category) String() string      { return domains[5].Name(int(c)) }
