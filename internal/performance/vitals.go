package performance

import "fmt"

// Grade classifies a measured vital or an overall score.
type Grade string

const (
	GradeExcellent        Grade = "excellent"
	GradeGood             Grade = "good"
	GradeNeedsImprovement Grade = "needs_improvement"
	GradePoor             Grade = "poor"
)

// thresholds holds the good/needs-improvement boundaries per vital. Times
// are milliseconds; cls is unitless.
type thresholds struct {
	good             float64
	needsImprovement float64
}

var vitalThresholds = map[string]thresholds{
	"lcp": {2500, 4000},
	"fcp": {1800, 3000},
	"cls": {0.1, 0.25},
	"fid": {100, 300},
	"tti": {3800, 7300},
	"tbt": {200, 600},
}

// gradeVital grades one measurement against its thresholds. Values at or
// under the good boundary grade excellent, at or under the
// needs-improvement boundary good, above it poor.
func gradeVital(name string, value float64) Grade {
	t, ok := vitalThresholds[name]
	if !ok {
		return GradeGood
	}
	switch {
	case value <= t.good:
		return GradeExcellent
	case value <= t.needsImprovement:
		return GradeGood
	default:
		return GradePoor
	}
}

// scoreVital maps a measurement onto the 100/75/25 point scale used for
// the overall score.
func scoreVital(name string, value float64) float64 {
	t, ok := vitalThresholds[name]
	if !ok {
		return 75
	}
	switch {
	case value <= t.good:
		return 100
	case value <= t.needsImprovement:
		return 75
	default:
		return 25
	}
}

// VitalsReport grades the Web vitals of one snapshot and scores the page
// overall.
type VitalsReport struct {
	LCP      *float64 `json:"lcp,omitempty"`
	LCPGrade Grade    `json:"lcp_grade,omitempty"`
	FCP      *float64 `json:"fcp,omitempty"`
	FCPGrade Grade    `json:"fcp_grade,omitempty"`
	CLS      *float64 `json:"cls,omitempty"`
	CLSGrade Grade    `json:"cls_grade,omitempty"`

	OverallScore float64 `json:"overall_score"`
	OverallGrade Grade   `json:"overall_grade"`

	MemoryUsagePercent *float64 `json:"memory_usage_percent,omitempty"`
	MemoryGrade        Grade    `json:"memory_grade,omitempty"`

	CriticalIssues  []string `json:"critical_issues"`
	Recommendations []string `json:"recommendations"`
}

// GradeSnapshot derives the vitals report for one snapshot. Absent metrics
// stay absent and do not pull the overall score down; a snapshot with no
// measured vitals scores a neutral 50.
func GradeSnapshot(snap Snapshot) VitalsReport {
	report := VitalsReport{
		CriticalIssues:  []string{},
		Recommendations: []string{},
	}

	var scores []float64
	if v := snap.LargestContentfulPaint; v != nil {
		report.LCP = v
		report.LCPGrade = gradeVital("lcp", *v)
		scores = append(scores, scoreVital("lcp", *v))
	}
	if v := snap.FirstContentfulPaint; v != nil {
		report.FCP = v
		report.FCPGrade = gradeVital("fcp", *v)
		scores = append(scores, scoreVital("fcp", *v))
	}
	if v := snap.CumulativeLayoutShift; v != nil {
		report.CLS = v
		report.CLSGrade = gradeVital("cls", *v)
		scores = append(scores, scoreVital("cls", *v))
	}

	if len(scores) == 0 {
		report.OverallScore = 50
	} else {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		report.OverallScore = sum / float64(len(scores))
	}
	report.OverallGrade = gradeScore(report.OverallScore)

	if snap.Memory != nil {
		pct := snap.Memory.UsagePercent()
		report.MemoryUsagePercent = &pct
		report.MemoryGrade = gradeMemory(pct)
	}

	report.CriticalIssues = vitalsCriticalIssues(report)
	report.Recommendations = vitalsRecommendations(report)
	return report
}

func gradeScore(score float64) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 75:
		return GradeGood
	case score >= 50:
		return GradeNeedsImprovement
	default:
		return GradePoor
	}
}

func gradeMemory(pct float64) Grade {
	switch {
	case pct < 50:
		return GradeExcellent
	case pct < 70:
		return GradeGood
	case pct < 85:
		return GradeNeedsImprovement
	default:
		return GradePoor
	}
}

func vitalsCriticalIssues(r VitalsReport) []string {
	issues := []string{}
	if r.LCP != nil && *r.LCP > 4000 {
		issues = append(issues, fmt.Sprintf("Largest Contentful Paint (%.0fms) exceeds 4 seconds, main content loads too slowly", *r.LCP))
	}
	if r.CLS != nil && *r.CLS > 0.25 {
		issues = append(issues, fmt.Sprintf("Cumulative Layout Shift (%.3f) causes poor user experience", *r.CLS))
	}
	if r.MemoryUsagePercent != nil && *r.MemoryUsagePercent > 90 {
		issues = append(issues, fmt.Sprintf("Memory usage near limit (%.1f%%), risk of crashes", *r.MemoryUsagePercent))
	}
	return issues
}

func vitalsRecommendations(r VitalsReport) []string {
	recs := []string{}
	if r.LCP != nil && *r.LCP > 2500 {
		recs = append(recs, "Optimize Largest Contentful Paint: compress images, use a CDN, improve server response time")
	}
	if r.CLS != nil && *r.CLS > 0.1 {
		recs = append(recs, "Fix Cumulative Layout Shift: set image dimensions, avoid dynamic content insertion")
	}
	if r.FCP != nil && *r.FCP > 1800 {
		recs = append(recs, "Speed up First Contentful Paint: optimize the critical rendering path, inline critical CSS")
	}
	if r.MemoryUsagePercent != nil && *r.MemoryUsagePercent > 60 {
		recs = append(recs, "Optimize memory usage: hunt down leaks, trim retained data structures")
	}
	return recs
}
