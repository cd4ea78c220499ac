package health_test

import (
	"testing"

	"github.com/hazz-dev/doiwatch/internal/health"
	"github.com/hazz-dev/doiwatch/internal/prober"
)

func recordFor(result prober.Result) *health.Record {
	rec := health.Merge(nil, result)
	return &rec
}

func TestDetectNewlyBroken_Transitions(t *testing.T) {
	tests := []struct {
		name   string
		result prober.Result
		prior  *health.Record
		want   bool
	}{
		{"unknown to broken", failResult("10.1000/x", t2), nil, true},
		{"healthy to broken", failResult("10.1000/x", t2), recordFor(okResult("10.1000/x", t1)), true},
		{"broken to broken", failResult("10.1000/x", t2), recordFor(failResult("10.1000/x", t1)), false},
		{"unknown to healthy", okResult("10.1000/x", t2), nil, false},
		{"broken to healthy", okResult("10.1000/x", t2), recordFor(failResult("10.1000/x", t1)), false},
		{"healthy to healthy", okResult("10.1000/x", t2), recordFor(okResult("10.1000/x", t1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prior := map[string]*health.Record{}
			if tt.prior != nil {
				prior["10.1000/x"] = tt.prior
			}
			report := health.DetectNewlyBroken([]prober.Result{tt.result}, prior)
			got := len(report.NewlyBroken) == 1
			if got != tt.want {
				t.Errorf("newly broken = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectNewlyBroken_SecondConsecutiveFailureNotNewlyBroken(t *testing.T) {
	// Cycle 1: unknown → broken.
	first := failResult("10.1000/x", t1)
	report1 := health.DetectNewlyBroken([]prober.Result{first}, map[string]*health.Record{})
	if len(report1.NewlyBroken) != 1 {
		t.Fatalf("cycle 1: expected newly broken, got %v", report1.NewlyBroken)
	}

	// Cycle 2: broken → broken, using cycle 1's merged record as prior.
	prior := map[string]*health.Record{"10.1000/x": recordFor(first)}
	report2 := health.DetectNewlyBroken([]prober.Result{failResult("10.1000/x", t2)}, prior)
	if len(report2.NewlyBroken) != 0 {
		t.Errorf("cycle 2: expected no newly broken, got %v", report2.NewlyBroken)
	}
}

func TestDetectNewlyBroken_Counts(t *testing.T) {
	results := []prober.Result{
		okResult("10.1000/a", t1),
		failResult("10.1000/b", t1),
		failResult("10.1000/c", t1),
		{Identifier: "10.1000/d", Skipped: true, CheckedAt: t1},
	}
	prior := map[string]*health.Record{
		"10.1000/c": recordFor(failResult("10.1000/c", t1)), // already broken
	}

	report := health.DetectNewlyBroken(results, prior)
	if report.Total != 4 || report.Healthy != 1 || report.Broken != 2 || report.Skipped != 1 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if len(report.NewlyBroken) != 1 || report.NewlyBroken[0] != "10.1000/b" {
		t.Errorf("expected only 10.1000/b newly broken, got %v", report.NewlyBroken)
	}
}

func TestDetectNewlyBroken_SkippedNeverNewlyBroken(t *testing.T) {
	results := []prober.Result{{Identifier: "10.1000/x", Skipped: true, CheckedAt: t1}}
	report := health.DetectNewlyBroken(results, map[string]*health.Record{})
	if len(report.NewlyBroken) != 0 {
		t.Errorf("skipped result classified as newly broken: %v", report.NewlyBroken)
	}
}

func TestDetectNewlyBroken_Empty(t *testing.T) {
	report := health.DetectNewlyBroken(nil, nil)
	if report.Total != 0 || len(report.NewlyBroken) != 0 {
		t.Errorf("expected zero report, got %+v", report)
	}
}
