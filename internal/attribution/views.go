package attribution

import (
	"math"
	"sort"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// GlobalImportance ranks features by mean absolute contribution across
// records, largest first. Ties keep schema order.
func GlobalImportance(records []domain.AttributionRecord, schema domain.FeatureSchema) []domain.FeatureImportance {
	out := make([]domain.FeatureImportance, len(schema))
	for j, name := range schema {
		out[j].Feature = name
		for _, r := range records {
			v := r.Contributions[name]
			out[j].MeanAbs += math.Abs(v)
			out[j].MeanSigned += v
		}
		if n := len(records); n > 0 {
			out[j].MeanAbs /= float64(n)
			out[j].MeanSigned /= float64(n)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MeanAbs > out[b].MeanAbs })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Dependence pairs each query's raw value of feature with its contribution.
func Dependence(records []domain.AttributionRecord, queries domain.FeatureFrame, feature string) ([]domain.DependencePoint, error) {
	col := queries.Schema.Index(feature)
	if col < 0 {
		return nil, apperrors.InvalidConfig("unknown feature %q", feature)
	}
	points := make([]domain.DependencePoint, 0, len(records))
	for _, r := range records {
		if r.QueryIndex < 0 || r.QueryIndex >= queries.Len() {
			return nil, apperrors.InvalidConfig("record for query %d outside %d queries", r.QueryIndex, queries.Len())
		}
		points = append(points, domain.DependencePoint{
			QueryIndex:   r.QueryIndex,
			Value:        queries.X.At(r.QueryIndex, col),
			Contribution: r.Contributions[feature],
		})
	}
	sort.SliceStable(points, func(a, b int) bool { return points[a].Value < points[b].Value })
	return points, nil
}

// Breakdown returns the records of the given query indices in that order,
// typically the most uncertain samples of a report. Missing indices are
// skipped.
func Breakdown(records []domain.AttributionRecord, indices []int) []domain.AttributionRecord {
	byQuery := make(map[int]domain.AttributionRecord, len(records))
	for _, r := range records {
		byQuery[r.QueryIndex] = r
	}
	out := make([]domain.AttributionRecord, 0, len(indices))
	for _, i := range indices {
		if r, ok := byQuery[i]; ok {
			out = append(out, r)
		}
	}
	return out
}
