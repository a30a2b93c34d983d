package types

import (
	"bytes"
	"encoding/json"
	"math"

	"deviation-classifier-go/internal/apperr"
)

// Classification is the six-field assessment of a deviation. Values are only
// produced through NewClassification or ParseClassification, so every field is
// inside its domain; stages replace the whole record rather than editing it.
type Classification struct {
	Severity Severity
	Urgency  Urgency
	Trend    Trend
	Type     DeviationType
	Routing  Routing
	Category Category
}

func NewClassification(severity, urgency, trend, typ, routing, category int) (Classification, error) {
	return fromCodes([len(domains)]int{severity, urgency, trend, typ, routing, category})
}

func fromCodes(codes [len(domains)]int) (Classification, error) {
	c := Classification{
		Severity: Severity(codes[0]),
		Urgency:  Urgency(codes[1]),
		Trend:    Trend(codes[2]),
		Type:     DeviationType(codes[3]),
		Routing:  Routing(codes[4]),
		Category: Category(codes[5]),
	}
	if err := c.Validate(); err != nil {
		return Classification{}, err
	}
	return c, nil
}

func (c Classification) codes() [len(domains)]int {
	return [len(domains)]int{int(c.Severity), int(c.Urgency), int(c.Trend), int(c.Type), int(c.Routing), int(c.Category)}
}

// Validate reports the first field outside its domain.
func (c Classification) Validate() error {
	codes := c.codes()
	for i, d := range domains {
		if !d.Contains(codes[i]) {
			return &apperr.ValidationError{Field: d.Field, Value: codes[i], Reason: "out of domain"}
		}
	}
	return nil
}

// Fields is the flat serialization: field key to integer code.
func (c Classification) Fields() map[string]int {
	codes := c.codes()
	out := make(map[string]int, len(domains))
	for i, d := range domains {
		out[d.Field] = codes[i]
	}
	return out
}

// Labels maps each field key to the name of its value.
func (c Classification) Labels() map[string]string {
	codes := c.codes()
	out := make(map[string]string, len(domains))
	for i, d := range domains {
		out[d.Field] = d.Name(codes[i])
	}
	return out
}

// ParseClassification builds a record from an untyped flat mapping, as
// produced by a predictor or by decoding JSON. Keys outside the six fields are
// ignored.
func ParseClassification(raw map[string]any) (Classification, error) {
	var codes [len(domains)]int
	for i, d := range domains {
		v, ok := raw[d.Field]
		if !ok {
			return Classification{}, &apperr.ValidationError{Field: d.Field, Reason: "missing"}
		}
		code, err := toCode(d.Field, v)
		if err != nil {
			return Classification{}, err
		}
		codes[i] = code
	}
	return fromCodes(codes)
}

func toCode(field string, v any) (int, error) {
	notInt := &apperr.ValidationError{Field: field, Value: v, Reason: "not an integer code"}
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			f = float64(i)
			break
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, notInt
		}
		f = parsed
	default:
		return 0, notInt
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, notInt
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, &apperr.ValidationError{Field: field, Value: v, Reason: "out of domain"}
	}
	return int(f), nil
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Fields())
}

func (c *Classification) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseClassification(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
