package pipeline

import (
	"bytes"
	"encoding/json"
	"sort"

	"ghg-data-pipeline/internal/geo"
	"ghg-data-pipeline/internal/model"
)

// RuleType names a validation primitive.
type RuleType string

const (
	RuleSchema        RuleType = "schema"
	RuleNullRate      RuleType = "null_rate"
	RuleOutlier       RuleType = "outlier"
	RuleDateRange     RuleType = "date_range"
	RuleGeoCode       RuleType = "geo_code"
	RuleRange         RuleType = "range"
	RuleAllowedValues RuleType = "allowed_values"
)

// Warehouse column names for the recognized dataset kinds.
const (
	ColLACode          = "local_authority_code"
	ColCalendarYear    = "calendar_year"
	ColSector          = "la_ghg_sector"
	ColEmissions       = "territorial_emissions_kt_co2e"
	ColPopulation      = "mid_year_population_thousands"
	ColArea            = "area_km2"
	ColLMKKey          = "LMK_KEY"
	ColLSOACode        = "lsoa21cd"
	ColPostcode        = "POSTCODE"
	ColLodgementYear   = "LODGEMENT_YEAR"
	ColPropertyType    = "PROPERTY_TYPE"
	ColEnergyRating    = "CURRENT_ENERGY_EFFICIENCY"
	ColCO2Current      = "CO2_EMISSIONS_CURRENT"
	ColTotalFloorArea  = "TOTAL_FLOOR_AREA"
	emissionsFirstYear = 2005
	epcFirstYear       = 2008
	lastValidYear      = 2030
)

// Rule configures one primitive. Which fields apply depends on Type.
type Rule struct {
	Name      string         `json:"name"`
	Type      RuleType       `json:"type"`
	Columns   []string       `json:"columns,omitempty"`
	Severity  model.Severity `json:"severity,omitempty"`
	Threshold *float64       `json:"threshold,omitempty"`
	K         *float64       `json:"k,omitempty"`
	MinYear   *int           `json:"min_year,omitempty"`
	MaxYear   *int           `json:"max_year,omitempty"`
	Min       *float64       `json:"min,omitempty"`
	Max       *float64       `json:"max,omitempty"`
	Level     *geo.Level     `json:"level,omitempty"`
	Allowed   []string       `json:"allowed,omitempty"`
	Expected  []model.Column `json:"expected,omitempty"`
}

// Thresholds overrides rule defaults. Nil fields keep the default.
type Thresholds struct {
	NullRate *float64 `json:"null_rate,omitempty"`
	OutlierK *float64 `json:"outlier_k,omitempty"`
	MinYear  *int     `json:"min_year,omitempty"`
	MaxYear  *int     `json:"max_year,omitempty"`
	Strict   *bool    `json:"strict,omitempty"`
}

// Merge returns t with every field set in override replacing its counterpart.
func (t Thresholds) Merge(override Thresholds) Thresholds {
	if override.NullRate != nil {
		t.NullRate = override.NullRate
	}
	if override.OutlierK != nil {
		t.OutlierK = override.OutlierK
	}
	if override.MinYear != nil {
		t.MinYear = override.MinYear
	}
	if override.MaxYear != nil {
		t.MaxYear = override.MaxYear
	}
	if override.Strict != nil {
		t.Strict = override.Strict
	}
	return t
}

func (t Thresholds) strict() bool { return t.Strict != nil && *t.Strict }

func (t Thresholds) nullRate() float64 {
	if t.NullRate == nil {
		return DefaultNullRateThreshold
	}
	return *t.NullRate
}

func (t Thresholds) outlierK() float64 {
	if t.OutlierK == nil {
		return DefaultOutlierK
	}
	return *t.OutlierK
}

func (t Thresholds) years(first int) (int, int) {
	lo, hi := first, lastValidYear
	if t.MinYear != nil {
		lo = *t.MinYear
	}
	if t.MaxYear != nil {
		hi = *t.MaxYear
	}
	return lo, hi
}

// SchemaFor returns the expected columns for kind.
func SchemaFor(kind model.DatasetKind) ([]model.Column, error) {
	switch kind {
	case model.KindEmissions:
		return []model.Column{
			{Name: ColLACode, Type: model.TypeString},
			{Name: ColCalendarYear, Type: model.TypeInt},
			{Name: ColSector, Type: model.TypeString},
			{Name: ColEmissions, Type: model.TypeFloat},
			{Name: ColPopulation, Type: model.TypeFloat},
			{Name: ColArea, Type: model.TypeFloat},
		}, nil
	case model.KindEPCDomestic:
		return []model.Column{
			{Name: ColLMKKey, Type: model.TypeString},
			{Name: ColLSOACode, Type: model.TypeString},
			{Name: ColPostcode, Type: model.TypeString},
			{Name: ColLodgementYear, Type: model.TypeInt},
			{Name: ColPropertyType, Type: model.TypeString},
			{Name: ColEnergyRating, Type: model.TypeFloat},
			{Name: ColCO2Current, Type: model.TypeFloat},
			{Name: ColTotalFloorArea, Type: model.TypeFloat},
		}, nil
	case model.KindGeographyLookup:
		return append([]model.Column(nil), geo.LookupColumns...), nil
	}
	return nil, model.ConfigErrorf("schema_for", "unknown dataset kind %q", kind)
}

// DefaultRules returns the fixed rule table for kind, adjusted by th. A non-nil
// taxonomy adds a sector vocabulary rule to emissions tables.
func DefaultRules(kind model.DatasetKind, th Thresholds, taxonomy *SectorTaxonomy) ([]Rule, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	nullRate, k := th.nullRate(), th.outlierK()
	rangeSeverity := model.SeverityWarning
	if th.strict() {
		rangeSeverity = model.SeverityError
	}
	zero := 0.0

	rules := []Rule{{Name: "schema", Type: RuleSchema, Expected: schema}}
	measure := func(column string) []Rule {
		return []Rule{
			{Name: column + "_null_rate", Type: RuleNullRate, Columns: []string{column}, Threshold: &nullRate},
			{Name: column + "_outliers", Type: RuleOutlier, Columns: []string{column}, K: &k},
			{Name: column + "_non_negative", Type: RuleRange, Columns: []string{column}, Min: &zero, Severity: rangeSeverity},
		}
	}

	switch kind {
	case model.KindEmissions:
		la := geo.LA
		lo, hi := th.years(emissionsFirstYear)
		rules = append(rules,
			Rule{Name: "la_code", Type: RuleGeoCode, Columns: []string{ColLACode}, Level: &la},
			Rule{Name: "calendar_year_range", Type: RuleDateRange, Columns: []string{ColCalendarYear}, MinYear: &lo, MaxYear: &hi},
		)
		rules = append(rules, measure(ColEmissions)...)
		rules = append(rules,
			Rule{Name: ColPopulation + "_non_negative", Type: RuleRange, Columns: []string{ColPopulation}, Min: &zero, Severity: rangeSeverity},
			Rule{Name: ColArea + "_non_negative", Type: RuleRange, Columns: []string{ColArea}, Min: &zero, Severity: rangeSeverity},
		)
		if taxonomy != nil {
			rules = append(rules, Rule{
				Name:     "sector_vocabulary",
				Type:     RuleAllowedValues,
				Columns:  []string{ColSector},
				Allowed:  taxonomy.Vocabulary(),
				Severity: model.SeverityWarning,
			})
		}
	case model.KindEPCDomestic:
		lsoa, pc := geo.LSOA, geo.Postcode
		lo, hi := th.years(epcFirstYear)
		rules = append(rules,
			Rule{Name: "lsoa_code", Type: RuleGeoCode, Columns: []string{ColLSOACode}, Level: &lsoa},
			Rule{Name: "postcode", Type: RuleGeoCode, Columns: []string{ColPostcode}, Level: &pc},
			Rule{Name: "lodgement_year_range", Type: RuleDateRange, Columns: []string{ColLodgementYear}, MinYear: &lo, MaxYear: &hi},
		)
		rules = append(rules, measure(ColCO2Current)...)
		rules = append(rules, measure(ColTotalFloorArea)...)
	case model.KindGeographyLookup:
		none := 0.0
		levels := levelVocabulary()
		rules = append(rules,
			Rule{
				Name:      "lookup_completeness",
				Type:      RuleNullRate,
				Columns:   []string{geo.ColChildCode, geo.ColChildLevel, geo.ColParentCode, geo.ColParentLevel},
				Threshold: &none,
				Severity:  model.SeverityError,
			},
			Rule{Name: "child_level_vocabulary", Type: RuleAllowedValues, Columns: []string{geo.ColChildLevel}, Allowed: levels, Severity: model.SeverityError},
			Rule{Name: "parent_level_vocabulary", Type: RuleAllowedValues, Columns: []string{geo.ColParentLevel}, Allowed: levels, Severity: model.SeverityError},
		)
	}

	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func levelVocabulary() []string {
	var out []string
	for _, lvl := range geo.Levels {
		out = append(out, lvl.String())
	}
	for _, alias := range []string{"lad", "pcds", "cauth"} {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// ParseRules decodes a JSON array of rules and validates them.
func ParseRules(data []byte) ([]Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rules []Rule
	if err := dec.Decode(&rules); err != nil {
		return nil, model.WrapConfig("parse_rules", err)
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules checks every rule's parameters and that names are unique.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return model.ConfigErrorf("validate_rules", "duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Validate checks that the rule carries the parameters its type needs.
func (r Rule) Validate() error {
	const op = "validate_rule"
	fail := func(format string, args ...interface{}) error {
		return model.ConfigErrorf(op, "rule %q: "+format, append([]interface{}{r.Name}, args...)...)
	}

	if r.Name == "" {
		return model.ConfigErrorf(op, "rule of type %q has no name", r.Type)
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return fail("unknown severity %q", r.Severity)
	}
	single := func() error {
		if len(r.Columns) != 1 || r.Columns[0] == "" {
			return fail("%s needs exactly one column, got %d", r.Type, len(r.Columns))
		}
		return nil
	}

	switch r.Type {
	case RuleSchema:
		if len(r.Expected) == 0 {
			return fail("schema rule without expected columns")
		}
		for _, c := range r.Expected {
			if c.Name == "" || !c.Type.Valid() {
				return fail("expected column %q has type %q", c.Name, c.Type)
			}
		}
	case RuleNullRate:
		if len(r.Columns) == 0 {
			return fail("null_rate needs at least one column")
		}
		if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 1) {
			return fail("threshold %v outside [0, 1]", *r.Threshold)
		}
	case RuleOutlier:
		if err := single(); err != nil {
			return err
		}
		if r.K != nil && *r.K <= 0 {
			return fail("IQR multiplier %v must be positive", *r.K)
		}
	case RuleDateRange:
		if err := single(); err != nil {
			return err
		}
		if r.MinYear == nil || r.MaxYear == nil {
			return fail("date_range needs min_year and max_year")
		}
		if *r.MinYear > *r.MaxYear {
			return fail("min_year %d after max_year %d", *r.MinYear, *r.MaxYear)
		}
	case RuleGeoCode:
		if err := single(); err != nil {
			return err
		}
		if r.Level == nil || !r.Level.Valid() {
			return fail("geo_code needs a level")
		}
	case RuleRange:
		if err := single(); err != nil {
			return err
		}
		if r.Min == nil && r.Max == nil {
			return fail("range needs min or max")
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fail("min %v above max %v", *r.Min, *r.Max)
		}
	case RuleAllowedValues:
		if err := single(); err != nil {
			return err
		}
		if len(r.Allowed) == 0 {
			return fail("allowed_values needs a vocabulary")
		}
	default:
		return fail("unknown rule type %q", r.Type)
	}
	return nil
}

// Run applies the rule to t. The result is named after the rule.
func (r Rule) Run(t *model.Table, lookup *geo.Lookup) model.ValidationResult {
	var res model.ValidationResult
	switch r.Type {
	case RuleSchema:
		res = CheckSchema(t, r.Expected)
	case RuleNullRate:
		cfg := NullRateConfig{Threshold: DefaultNullRateThreshold, Severity: r.Severity}
		if r.Threshold != nil {
			cfg.Threshold = *r.Threshold
		}
		res = CheckNullRate(t, r.Columns, cfg)
	case RuleOutlier:
		cfg := OutlierConfig{}
		if r.K != nil {
			cfg.K = *r.K
		}
		res = CheckOutliers(t, r.Columns[0], cfg)
	case RuleDateRange:
		res = CheckDateRange(t, r.Columns[0], *r.MinYear, *r.MaxYear)
	case RuleGeoCode:
		res = CheckGeoCodes(t, r.Columns[0], *r.Level, lookup)
	case RuleRange:
		res = CheckRange(t, r.Columns[0], RangeConfig{Min: r.Min, Max: r.Max, Severity: r.Severity})
	case RuleAllowedValues:
		res = CheckAllowedValues(t, r.Columns[0], r.Allowed, r.Severity)
	}
	res.Check = r.Name
	return res
}
