package orchestrator

import (
	"strings"

	"github.com/bronn-dev/dentalbridge/internal/triage"
)

// Condition keys understood by the procedure resolver.
const (
	ConditionEmergency        = "emergency"
	ConditionRootCanal        = "root_canal"
	ConditionWisdomExtraction = "wisdom_extraction"
	ConditionFilling          = "filling"
	ConditionCrown            = "crown"
	ConditionGeneralCheckup   = "general_checkup"
)

// ClassifyCondition maps one issue's extracted features to a condition key.
// Rules run strictly in clinical priority order: emergency flags first, then
// pulpal indicators, surgical indicators, restorative, and finally keyword
// fallbacks on the symptom cluster. The returned triggers name the evidence
// that fired the winning rule only.
func ClassifyCondition(issue triage.ClinicalIssue) (string, []string) {
	var triggers []string
	if issue.AirwayCompromise {
		triggers = append(triggers, "Airway compromise")
	}
	if issue.Trauma {
		triggers = append(triggers, "Dental trauma")
	}
	if issue.Bleeding {
		triggers = append(triggers, "Uncontrolled bleeding")
	}
	if len(triggers) > 0 {
		return ConditionEmergency, triggers
	}

	severity := 0
	if issue.Severity != nil {
		severity = *issue.Severity
	}
	cluster := strings.ToLower(issue.SymptomCluster)

	// Severe provoked pain without swelling points at the pulp.
	if issue.HasPain {
		triggers = nil
		if severity >= 7 {
			triggers = append(triggers, "Severe pain")
		}
		if issue.ThermalSensitivity {
			triggers = append(triggers, "Thermal sensitivity")
		}
		if issue.BitingPain {
			triggers = append(triggers, "Biting pain")
		}
		if severity >= 7 && (issue.ThermalSensitivity || issue.BitingPain) && !issue.Swelling {
			return ConditionRootCanal, triggers
		}
	}

	// Swelling plus a wisdom-tooth signal is surgical.
	triggers = nil
	if issue.Swelling {
		triggers = append(triggers, "Swelling")
	}
	if issue.ImpactedWisdom {
		triggers = append(triggers, "Impacted wisdom")
	}
	wisdomCluster := strings.Contains(cluster, "wisdom")
	if wisdomCluster {
		triggers = append(triggers, "Wisdom tooth cluster")
	}
	if issue.Swelling && (issue.ImpactedWisdom || wisdomCluster) {
		return ConditionWisdomExtraction, triggers
	}
	if issue.Swelling && strings.Contains(cluster, "extraction") {
		triggers = append(triggers, "Extraction mentioned")
		return ConditionWisdomExtraction, triggers
	}

	// Moderate unprovoked pain reads as restorative.
	triggers = nil
	if issue.HasPain {
		triggers = append(triggers, "Pain")
	}
	if severity <= 6 {
		triggers = append(triggers, "Moderate severity")
	}
	if issue.HasPain && severity <= 6 && !issue.Swelling && !issue.ThermalSensitivity {
		return ConditionFilling, triggers
	}

	switch {
	case strings.Contains(cluster, "root canal"):
		return ConditionRootCanal, []string{"Root canal keyword"}
	case strings.Contains(cluster, "wisdom"):
		return ConditionWisdomExtraction, []string{"Wisdom tooth keyword"}
	case strings.Contains(cluster, "crown"):
		return ConditionCrown, []string{"Crown keyword"}
	case strings.Contains(cluster, "filling"):
		return ConditionFilling, []string{"Filling keyword"}
	case strings.Contains(cluster, "clean"):
		return ConditionGeneralCheckup, []string{"Cleaning/Hygiene keyword"}
	}
	return ConditionGeneralCheckup, []string{"Routine follow-up"}
}
