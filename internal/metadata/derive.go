package metadata

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// DefaultCategory is used when no keyword in the report title matches.
const DefaultCategory = "General Medical Report"

type categoryRule struct {
	keyword  string
	category string
}

// Rules are checked in order; the first keyword found in the title wins.
var categoryRules = []categoryRule{
	{keyword: "blood", category: "Blood Test"},
	{keyword: "kidney", category: "Kidney Function"},
	{keyword: "liver", category: "Liver Function"},
	{keyword: "thyroid", category: "Thyroid"},
	{keyword: "prescription", category: "Prescription"},
}

// Derive computes the category and anomaly summary for a findings record.
func Derive(findings models.FindingsRecord) models.DerivedMetadata {
	anomalies := make([]string, 0, len(findings.Tests))
	for _, t := range findings.Tests {
		anomalies = append(anomalies, FormatAnomaly(t))
	}
	return models.DerivedMetadata{
		Category:     Categorize(findings.ReportTitle),
		Anomalies:    anomalies,
		HasAnomalies: len(anomalies) > 0,
		AnomalyCount: len(anomalies),
	}
}

// Analyze wraps findings and their derived metadata as a completed analysis.
func Analyze(findings models.FindingsRecord) models.Analyzed {
	return models.Analyzed{Findings: findings, Derived: Derive(findings)}
}

// FormatAnomaly renders a finding as "parameter: value unit (STATUS)".
func FormatAnomaly(t models.TestFinding) string {
	return fmt.Sprintf("%s: %s %s (%s)", t.Parameter, t.Value, t.Unit, t.Status)
}

// Categorize maps a report title to a document category.
func Categorize(title string) string {
	lower := strings.ToLower(title)
	for _, rule := range categoryRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.category
		}
	}
	return DefaultCategory
}
