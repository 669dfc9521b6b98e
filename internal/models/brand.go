package models

import (
	"fmt"
	"strings"
)

// Brand is the value the merge service expects in the upload form's brand field.
type Brand string

const (
	BrandTonyRomas           Brand = "Tony Romas"
	BrandManhattanFishMarket Brand = "The Manhattan Fish Market"
	BrandNewYorkSteakShack   Brand = "New York Steak Shack"
)

// BrandUnknown is sent with invalid-email uploads when the operator picked no brand.
const BrandUnknown = "Unknown"

type brandInfo struct {
	label string
	code  string
}

// Display labels differ from the wire values; codes are what the
// master-emails brand filter understands (is_tr / is_mfm / is_nyss).
var brandTable = map[Brand]brandInfo{
	BrandTonyRomas:           {label: "Tony Roma's", code: "TR"},
	BrandManhattanFishMarket: {label: "The Manhattan FISH MARKET", code: "MFM"},
	BrandNewYorkSteakShack:   {label: "NY Steak Shack", code: "NYSS"},
}

// Brands returns every brand in display order.
func Brands() []Brand {
	return []Brand{BrandTonyRomas, BrandManhattanFishMarket, BrandNewYorkSteakShack}
}

// Valid reports whether b is a member of the enumeration.
func (b Brand) Valid() bool {
	_, ok := brandTable[b]
	return ok
}

// Label returns the human-facing name, or the raw value for unknown brands.
func (b Brand) Label() string {
	if info, ok := brandTable[b]; ok {
		return info.label
	}
	return string(b)
}

// Code returns the short filter code (TR, MFM, NYSS), empty for unknown brands.
func (b Brand) Code() string {
	return brandTable[b].code
}

func (b Brand) String() string {
	return string(b)
}

// ParseBrand resolves a wire value, display label or filter code, ignoring case.
// An empty string yields the zero Brand and no error.
func ParseBrand(s string) (Brand, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, b := range Brands() {
		info := brandTable[b]
		if strings.EqualFold(s, string(b)) || strings.EqualFold(s, info.label) || strings.EqualFold(s, info.code) {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown brand %q (valid: %s)", s, strings.Join(brandValues(), ", "))
}

// BrandFromCode maps a filter code back to its brand.
func BrandFromCode(code string) (Brand, bool) {
	for b, info := range brandTable {
		if strings.EqualFold(info.code, code) {
			return b, true
		}
	}
	return "", false
}

func brandValues() []string {
	out := make([]string, 0, len(brandTable))
	for _, b := range Brands() {
		out = append(out, string(b))
	}
	return out
}

// Segment is an RFM-style customer classification label.
type Segment string

const (
	SegmentChampions     Segment = "Champions"
	SegmentLoyal         Segment = "Loyal"
	SegmentPromising     Segment = "Promising"
	SegmentNeedAttention Segment = "Need Attention"
	SegmentCantLoseThem  Segment = "Can't Lose Them"
	SegmentAboutToSleep  Segment = "About To Sleep"
	SegmentHibernating   Segment = "Hibernating"
)

// Segments returns the closed segment enumeration.
func Segments() []Segment {
	return []Segment{
		SegmentChampions,
		SegmentLoyal,
		SegmentPromising,
		SegmentNeedAttention,
		SegmentCantLoseThem,
		SegmentAboutToSleep,
		SegmentHibernating,
	}
}

// Valid reports whether s is a member of the enumeration.
func (s Segment) Valid() bool {
	for _, known := range Segments() {
		if s == known {
			return true
		}
	}
	return false
}

func (s Segment) String() string {
	return string(s)
}

// ParseSegment resolves a segment label ignoring case and surrounding space.
// An empty string yields the zero Segment and no error.
func ParseSegment(s string) (Segment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, seg := range Segments() {
		if strings.EqualFold(s, string(seg)) {
			return seg, nil
		}
	}
	return "", fmt.Errorf("unknown segment %q", s)
}
