package quoter

import "github.com/parlayhq/parlayquoter/internal/domain"

// MatchesTarget reports whether every target leg id appears among the RFQ's
// legs. The test is a subset test: extra RFQ legs never break a match, and
// leg order is irrelevant. An empty target set never matches, so an
// unconfigured bot quotes nothing.
func MatchesTarget(legs []domain.Leg, target []string) bool {
	if len(target) == 0 {
		return false
	}

	rfqLegs := make(map[string]struct{}, len(legs))
	for _, leg := range legs {
		rfqLegs[leg.ID()] = struct{}{}
	}

	for _, want := range target {
		if _, ok := rfqLegs[domain.NormalizeLegID(want)]; !ok {
			return false
		}
	}
	return true
}
