package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SubRegion is the coarse area a neighborhood belongs to
type SubRegion string

const (
	SubRegionLowerManhattan   SubRegion = "Lower Manhattan"
	SubRegionMidtownManhattan SubRegion = "Midtown Manhattan"
	SubRegionUpperManhattan   SubRegion = "Upper Manhattan"
	SubRegionNorthBrooklyn    SubRegion = "North Brooklyn"
	SubRegionSouthBrooklyn    SubRegion = "South Brooklyn"
	SubRegionWesternQueens    SubRegion = "Western Queens"
	SubRegionEasternQueens    SubRegion = "Eastern Queens"
	SubRegionBronx            SubRegion = "Bronx"
	SubRegionStatenIsland     SubRegion = "Staten Island"
	SubRegionUnknown          SubRegion = "Unknown"
)

// SubRegions lists every sub-region in encoding order
var SubRegions = []SubRegion{
	SubRegionLowerManhattan,
	SubRegionMidtownManhattan,
	SubRegionUpperManhattan,
	SubRegionNorthBrooklyn,
	SubRegionSouthBrooklyn,
	SubRegionWesternQueens,
	SubRegionEasternQueens,
	SubRegionBronx,
	SubRegionStatenIsland,
	SubRegionUnknown,
}

var subRegionAliases = map[string]SubRegion{
	"financialdistrict": SubRegionLowerManhattan,
	"tribeca":           SubRegionLowerManhattan,
	"greenwichvillage":  SubRegionLowerManhattan,
	"eastvillage":       SubRegionLowerManhattan,
	"soho":              SubRegionLowerManhattan,
	"midtown":           SubRegionMidtownManhattan,
	"chelsea":           SubRegionMidtownManhattan,
	"uppereastside":     SubRegionUpperManhattan,
	"upperwestside":     SubRegionUpperManhattan,
	"harlem":            SubRegionUpperManhattan,
	"brooklynheights":   SubRegionNorthBrooklyn,
	"williamsburg":      SubRegionNorthBrooklyn,
	"greenpoint":        SubRegionNorthBrooklyn,
	"parkslope":         SubRegionSouthBrooklyn,
	"bayridge":          SubRegionSouthBrooklyn,
	"astoria":           SubRegionWesternQueens,
	"longislandcity":    SubRegionWesternQueens,
	"flushing":          SubRegionEasternQueens,
	"jamaica":           SubRegionEasternQueens,
	"thebronx":          SubRegionBronx,
	"statenisland":      SubRegionStatenIsland,
}

// IsValid checks if the sub-region is one of the known values
func (r SubRegion) IsValid() bool {
	for _, s := range SubRegions {
		if s == r {
			return true
		}
	}
	return false
}

// ParseSubRegion maps free text onto a SubRegion; unrecognised text is Unknown.
func ParseSubRegion(text string) SubRegion {
	key := normalizeRegionKey(text)
	for _, s := range SubRegions {
		if normalizeRegionKey(string(s)) == key {
			return s
		}
	}
	if s, ok := subRegionAliases[key]; ok {
		return s
	}
	return SubRegionUnknown
}

func normalizeRegionKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const (
	MinAffluence     = 1
	MaxAffluence     = 10
	DefaultAffluence = 5
)

// NeighborhoodProfile is the enrichment attached to a neighborhood name
type NeighborhoodProfile struct {
	Name      string    `json:"name"`
	SubRegion SubRegion `json:"subRegion"`
	Affluence int       `json:"affluence"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// NeighborhoodFeatureNames returns the feature names produced by Encode
func NeighborhoodFeatureNames() []string {
	names := make([]string, 0, len(SubRegions)+1)
	for _, s := range SubRegions {
		names = append(names, "sub_region_"+strings.ReplaceAll(strings.ToLower(string(s)), " ", "_"))
	}
	return append(names, "affluence_score")
}

// Encode returns the one-hot sub-region followed by the affluence score
func (p NeighborhoodProfile) Encode() []float64 {
	out := make([]float64, len(SubRegions)+1)
	idx := len(SubRegions) - 1
	for i, s := range SubRegions {
		if s == p.SubRegion {
			idx = i
			break
		}
	}
	out[idx] = 1
	out[len(SubRegions)] = float64(clampAffluence(p.Affluence))
	return out
}

func clampAffluence(a int) int {
	return max(MinAffluence, min(MaxAffluence, a))
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

type rawMapping struct {
	OriginalName   *string         `json:"original_name"`
	SubRegion      *string         `json:"sub_region"`
	AffluenceScore json.RawMessage `json:"affluence_score"`
}

// ParseNeighborhoodMappings decodes an enrichment payload of the form
// {"mappings": [{"original_name", "sub_region", "affluence_score"}]}. The
// object may be wrapped in a fenced code block. Entries without a name are
// skipped, affluence defaults to 5 and is clamped to 1..10, and unknown
// sub-regions become Unknown.
func ParseNeighborhoodMappings(text string) (map[string]NeighborhoodProfile, error) {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode neighborhood mappings: %w", err)
	}
	raw, ok := doc["mappings"]
	if !ok || string(raw) == "null" {
		raw = doc["mapping"]
	}

	var items []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("expected 'mappings' array: %w", err)
		}
	}

	out := make(map[string]NeighborhoodProfile, len(items))
	for _, item := range items {
		var m rawMapping
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		if m.OriginalName == nil {
			continue
		}
		region := SubRegionUnknown
		if m.SubRegion != nil {
			region = ParseSubRegion(*m.SubRegion)
		}
		out[*m.OriginalName] = NeighborhoodProfile{
			Name:      *m.OriginalName,
			SubRegion: region,
			Affluence: clampAffluence(parseAffluence(m.AffluenceScore)),
		}
	}
	return out, nil
}

func parseAffluence(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultAffluence
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && !math.IsNaN(f) {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return DefaultAffluence
}
