package models

import (
	"fmt"
	"strings"
)

// DataType selects the processing pipeline for a sample's input.
type DataType string

const (
	DataTypeCTD             DataType = "CTD"
	DataTypeSequence        DataType = "Sequence"
	DataTypeNutrientAmmonia DataType = "NutrientAmmonia"
)

// Valid reports whether d is one of the known data types.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeCTD, DataTypeSequence, DataTypeNutrientAmmonia:
		return true
	}
	return false
}

// NeedsWorker reports whether d is processed out of process.
func (d DataType) NeedsWorker() bool {
	return d == DataTypeCTD || d == DataTypeSequence
}

// ParseDataType accepts the canonical names and a few short aliases
// ("ctd", "seq", "ammonia").
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ctd":
		return DataTypeCTD, nil
	case "sequence", "seq":
		return DataTypeSequence, nil
	case "nutrientammonia", "ammonia", "nutrient_ammonia":
		return DataTypeNutrientAmmonia, nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}
