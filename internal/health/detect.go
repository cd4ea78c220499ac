package health

import "github.com/hazz-dev/doiwatch/internal/prober"

// Report summarizes one cycle's transition detection. NewlyBroken lists the
// identifiers whose health just flipped from healthy-or-unknown to broken;
// the counts are for reporting only and play no part in alerting.
type Report struct {
	NewlyBroken []string
	Total       int
	Healthy     int
	Broken      int
	Skipped     int
}

// DetectNewlyBroken classifies each result against the record that was
// persisted before this cycle's merges. An identifier is newly broken iff
// its result is unhealthy and its prior state was not unhealthy (unknown
// counts as not unhealthy, so unknown→broken alerts). Skipped results are
// counted but never classified.
func DetectNewlyBroken(results []prober.Result, prior map[string]*Record) Report {
	report := Report{Total: len(results)}
	for _, r := range results {
		if r.Skipped {
			report.Skipped++
			continue
		}
		if r.Healthy {
			report.Healthy++
			continue
		}
		report.Broken++
		if !prior[r.Identifier].Broken() {
			report.NewlyBroken = append(report.NewlyBroken, r.Identifier)
		}
	}
	return report
}
