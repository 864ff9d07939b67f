package geo

import (
	"strings"

	"ghg-data-pipeline/internal/model"
)

// Level is a rung of the UK statistical geography, finest first.
type Level int

const (
	Postcode Level = iota
	LSOA
	MSOA
	LA
	CA
)

// Levels lists every level from finest to coarsest.
var Levels = []Level{Postcode, LSOA, MSOA, LA, CA}

var levelNames = map[Level]string{
	Postcode: "postcode",
	LSOA:     "lsoa",
	MSOA:     "msoa",
	LA:       "la",
	CA:       "ca",
}

var levelAliases = map[string]Level{
	"postcode":        Postcode,
	"pcds":            Postcode,
	"lsoa":            LSOA,
	"msoa":            MSOA,
	"la":              LA,
	"lad":             LA,
	"local_authority": LA,
	"ca":              CA,
	"cauth":           CA,
}

func (l Level) Valid() bool { return l >= Postcode && l <= CA }

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Parent returns the next coarser level. CA has none.
func (l Level) Parent() (Level, bool) {
	if !l.Valid() || l == CA {
		return 0, false
	}
	return l + 1, true
}

// Finer reports whether l sits strictly below other in the hierarchy.
func (l Level) Finer(other Level) bool { return l < other }

// CodeColumn is the output column name aggregations use for this level, e.g. "la_code".
func (l Level) CodeColumn() string { return l.String() + "_code" }

// ParseLevel accepts the canonical names plus the warehouse aliases (lad, pcds, cauth).
func ParseLevel(s string) (Level, error) {
	l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, model.ConfigErrorf("parse_level", "unknown geography level %q", s)
	}
	return l, nil
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, model.ConfigErrorf("marshal_level", "invalid geography level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
