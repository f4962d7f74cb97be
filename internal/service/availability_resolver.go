package service

import (
	"sort"

	"github.com/noah-isme/counseling-booking-api/internal/models"
	"github.com/noah-isme/counseling-booking-api/pkg/timerange"
)

// AvailabilityResolver turns published weekly ranges into the canonical set
// of 30 minute units. It holds no state and performs no business hours
// validation; gaps and odd hours are honoured as entered.
type AvailabilityResolver struct{}

// NewAvailabilityResolver constructs the resolver.
func NewAvailabilityResolver() *AvailabilityResolver {
	return &AvailabilityResolver{}
}

// Resolve unions the units covered by every range of every entry. Repeated
// and overlapping ranges collapse, and the result is sorted by start.
func (r *AvailabilityResolver) Resolve(entries []models.WeeklyAvailabilityEntry) ([]timerange.Range, error) {
	set := make(map[timerange.Range]struct{})
	for _, entry := range entries {
		if err := collectUnits(set, entry.RawRanges); err != nil {
			return nil, err
		}
	}
	return sortedUnits(set), nil
}

// ResolveByCounselor resolves each counselor's entries separately, keyed by
// counselor id. Counselors whose entries cover no unit are omitted.
func (r *AvailabilityResolver) ResolveByCounselor(entries []models.WeeklyAvailabilityEntry) (map[string][]timerange.Range, error) {
	sets := make(map[string]map[timerange.Range]struct{})
	for _, entry := range entries {
		set, ok := sets[entry.CounselorID]
		if !ok {
			set = make(map[timerange.Range]struct{})
			sets[entry.CounselorID] = set
		}
		if err := collectUnits(set, entry.RawRanges); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]timerange.Range, len(sets))
	for counselorID, set := range sets {
		if len(set) == 0 {
			continue
		}
		out[counselorID] = sortedUnits(set)
	}
	return out, nil
}

func collectUnits(set map[timerange.Range]struct{}, raw []string) error {
	for _, value := range raw {
		parsed, err := timerange.Parse(value)
		if err != nil {
			return translateRangeError(err)
		}
		units, err := parsed.Split()
		if err != nil {
			return translateRangeError(err)
		}
		for _, unit := range units {
			set[unit] = struct{}{}
		}
	}
	return nil
}

func sortedUnits(set map[timerange.Range]struct{}) []timerange.Range {
	units := make([]timerange.Range, 0, len(set))
	for unit := range set {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Start < units[j].Start })
	return units
}

func containsUnit(units []timerange.Range, unit timerange.Range) bool {
	idx := sort.Search(len(units), func(i int) bool { return units[i].Start >= unit.Start })
	return idx < len(units) && units[idx] == unit
}

func sortedCounselorIDs(byCounselor map[string][]timerange.Range) []string {
	ids := make([]string, 0, len(byCounselor))
	for id := range byCounselor {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
