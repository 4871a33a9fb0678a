package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// csvOptions controls how a CSV becomes a frame
type csvOptions struct {
	// Target names the sale price column. A missing column is allowed
	// unless RequireTarget is set.
	Target        string
	RequireTarget bool
	// Price marks Target as dollars; targets become log(price/PriceScale).
	Price      bool
	PriceScale float64
	Drop       []string
	// NeighborhoodColumn is replaced by the encoded profile features.
	NeighborhoodColumn string
	Neighborhoods      map[string]domain.NeighborhoodProfile
}

func loadFrameCSV(path string, opts csvOptions) (domain.FrameData, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.FrameData{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return readFrameCSV(f, opts)
}

// readFrameCSV parses a header row followed by numeric rows
func readFrameCSV(r io.Reader, opts csvOptions) (domain.FrameData, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.FrameData{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	targetCol, hoodCol := -1, -1
	var features []string
	var featureCols []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case opts.Target != "" && name == opts.Target:
			targetCol = i
		case opts.NeighborhoodColumn != "" && name == opts.NeighborhoodColumn:
			hoodCol = i
		case slices.Contains(opts.Drop, name):
		default:
			features = append(features, name)
			featureCols = append(featureCols, i)
		}
	}
	if targetCol < 0 && opts.RequireTarget {
		return domain.FrameData{}, apperrors.Validation(fmt.Sprintf("CSV has no %q column", opts.Target))
	}
	if opts.NeighborhoodColumn != "" && hoodCol < 0 {
		return domain.FrameData{}, apperrors.Validation(fmt.Sprintf("CSV has no %q column", opts.NeighborhoodColumn))
	}
	if hoodCol >= 0 {
		features = append(features, domain.NeighborhoodFeatureNames()...)
	}

	scale := opts.PriceScale
	if scale <= 0 {
		scale = 1
	}

	data := domain.FrameData{Features: features}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.FrameData{}, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := make([]float64, 0, len(features))
		for j, col := range featureCols {
			v, err := parseCell(record[col])
			if err != nil {
				return domain.FrameData{}, apperrors.Validation(fmt.Sprintf("line %d column %q: %v", line, features[j], err))
			}
			row = append(row, v)
		}
		if hoodCol >= 0 {
			row = append(row, lookupNeighborhood(opts.Neighborhoods, record[hoodCol]).Encode()...)
		}
		data.Rows = append(data.Rows, row)

		if targetCol >= 0 {
			y, err := parseCell(record[targetCol])
			if err != nil {
				return domain.FrameData{}, apperrors.Validation(fmt.Sprintf("line %d column %q: %v", line, opts.Target, err))
			}
			if opts.Price {
				if y <= 0 {
					return domain.FrameData{}, apperrors.Validation(fmt.Sprintf("line %d: sale price must be positive", line))
				}
				y = math.Log(y / scale)
			}
			data.Targets = append(data.Targets, y)
		}
	}
	if len(data.Rows) == 0 {
		return domain.FrameData{}, apperrors.Validation("CSV has no data rows")
	}
	return data, nil
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", s)
	}
	return v, nil
}

// lookupNeighborhood falls back to an unknown profile of default affluence
func lookupNeighborhood(profiles map[string]domain.NeighborhoodProfile, name string) domain.NeighborhoodProfile {
	name = strings.TrimSpace(name)
	if p, ok := profiles[name]; ok {
		return p
	}
	return domain.NeighborhoodProfile{Name: name, SubRegion: domain.SubRegionUnknown, Affluence: domain.DefaultAffluence}
}

func loadNeighborhoods(path string) (map[string]domain.NeighborhoodProfile, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return domain.ParseNeighborhoodMappings(string(raw))
}
