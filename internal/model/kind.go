package model

import (
	"encoding/json"
	"strings"
)

// DatasetKind is the closed set of dataset shapes the pipeline recognizes.
type DatasetKind string

const (
	KindEmissions       DatasetKind = "emissions"
	KindEPCDomestic     DatasetKind = "epc_domestic"
	KindGeographyLookup DatasetKind = "geography_lookup"
)

// DatasetKinds lists every recognized kind in a fixed order.
var DatasetKinds = []DatasetKind{KindEmissions, KindEPCDomestic, KindGeographyLookup}

func (k DatasetKind) Valid() bool {
	switch k {
	case KindEmissions, KindEPCDomestic, KindGeographyLookup:
		return true
	}
	return false
}

func (k DatasetKind) String() string { return string(k) }

// ParseDatasetKind maps a name onto a DatasetKind; anything unrecognized is a configuration error.
func ParseDatasetKind(s string) (DatasetKind, error) {
	k := DatasetKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ConfigErrorf("parse_dataset_kind", "unknown dataset kind %q", s)
	}
	return k, nil
}

func (k *DatasetKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return WrapConfig("parse_dataset_kind", err)
	}
	parsed, err := ParseDatasetKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
