package engine

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/watchstack/watchstack-anomaly/internal/baseline"
	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// Thresholds are the deviation magnitude bands gating severity. Below Warning
// no alert is raised; at or above Critical the alert is critical.
type Thresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// DefaultThresholds returns the stock severity bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 3.0, Critical: 6.0}
}

// ActionRule maps (metric, direction, minimum severity) to remediation hints.
type ActionRule struct {
	Metric      string           `yaml:"metric"`
	Direction   models.Direction `yaml:"direction"`
	MinSeverity models.Severity  `yaml:"min_severity"`
	Actions     []string         `yaml:"actions"`
}

// actionRulePack is the YAML root structure for an on-disk rule pack.
type actionRulePack struct {
	Rules []ActionRule `yaml:"rules"`
}

// genericCriticalAction is attached to every critical anomaly regardless of
// rule matches, so an unmapped metric still carries at least one hint.
const genericCriticalAction = "Investigate immediately - critical anomaly detected"

// DefaultActionRules returns the built-in rule table. Order matters: rules
// are evaluated top to bottom and their actions accumulate in that order.
func DefaultActionRules() []ActionRule {
	return []ActionRule{
		{Metric: models.MetricAvgResponseTime1Min, Direction: models.DirectionHigh, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check upstream service and database latency"}},
		{Metric: models.MetricAvgResponseTime1Min, Direction: models.DirectionHigh, MinSeverity: models.SeverityCritical,
			Actions: []string{"Review recent code changes for performance regressions"}},
		{Metric: models.MetricAvgResponseTime1Min, Direction: models.DirectionLow, MinSeverity: models.SeverityWarning,
			Actions: []string{"Verify the service is still receiving traffic"}},
		{Metric: models.MetricErrorRate1Min, Direction: models.DirectionHigh, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check application logs for new error signatures"}},
		{Metric: models.MetricErrorRate1Min, Direction: models.DirectionHigh, MinSeverity: models.SeverityCritical,
			Actions: []string{"Review recent deployments and consider a rollback"}},
		{Metric: models.MetricRequestsPerSecond, Direction: models.DirectionLow, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check load balancer and upstream routing", "Verify health checks are passing"}},
		{Metric: models.MetricActiveRequests, Direction: models.DirectionHigh, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check for stuck requests or connection leaks"}},
		{Metric: models.MetricActiveRequests, Direction: models.DirectionLow, MinSeverity: models.SeverityWarning,
			Actions: []string{"Verify traffic is reaching the service"}},
		{Metric: models.MetricQueueDepth, Direction: models.DirectionHigh, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check worker throughput and queue consumers"}},
		{Metric: models.MetricCacheHitRate, Direction: models.DirectionLow, MinSeverity: models.SeverityWarning,
			Actions: []string{"Check cache eviction rate and key TTLs"}},
	}
}

// LoadActionRules reads a YAML rule pack. A missing file or empty path falls
// back to the built-in table.
func LoadActionRules(path string) ([]ActionRule, error) {
	if path == "" {
		return DefaultActionRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultActionRules(), nil
		}
		return nil, err
	}
	var pack actionRulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, err
	}
	if len(pack.Rules) == 0 {
		return DefaultActionRules(), nil
	}
	return pack.Rules, nil
}

// Classifier assigns severity tiers and remediation actions to deviations.
// Pure classification, no side effects.
type Classifier struct {
	thresholds Thresholds
	rules      []ActionRule
	logger     *slog.Logger
}

// NewClassifier builds a Classifier from severity bands and an ordered rule
// table. Zero-valued thresholds fall back to the defaults.
func NewClassifier(thresholds Thresholds, rules []ActionRule, logger *slog.Logger) *Classifier {
	if thresholds.Warning <= 0 {
		thresholds.Warning = DefaultThresholds().Warning
	}
	if thresholds.Critical <= thresholds.Warning {
		thresholds.Critical = thresholds.Warning * 2
	}
	if rules == nil {
		rules = DefaultActionRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{thresholds: thresholds, rules: rules, logger: logger}
}

// Classify maps a deviation onto a severity tier and its suggested actions.
// The third result is false when no alert should be raised: either the
// deviation sits below the warning band, or the baseline has too little
// history to mean anything (cold start never alerts).
func (c *Classifier) Classify(result models.DeviationResult, base baseline.Snapshot) (models.Anomaly, []string, bool) {
	if !base.Ready() {
		return models.Anomaly{}, nil, false
	}
	if result.Deviation < c.thresholds.Warning {
		return models.Anomaly{}, nil, false
	}

	severity := models.SeverityWarning
	if result.Deviation >= c.thresholds.Critical {
		severity = models.SeverityCritical
	}

	anomaly := models.Anomaly{
		Severity:         severity,
		MetricName:       result.MetricName,
		CurrentValue:     result.CurrentValue,
		BaselineValue:    result.BaselineValue,
		Deviation:        result.Deviation,
		PercentageChange: result.PercentageChange,
	}

	direction := result.Direction()
	actions := make([]string, 0, 4)
	for _, rule := range c.rules {
		if rule.Metric != result.MetricName {
			continue
		}
		if rule.Direction != direction {
			continue
		}
		if !severityAtLeast(severity, rule.MinSeverity) {
			continue
		}
		actions = appendUnique(actions, rule.Actions...)
	}
	if severity == models.SeverityCritical {
		actions = appendUnique(actions, genericCriticalAction)
	}

	return anomaly, actions, true
}

func severityAtLeast(have, want models.Severity) bool {
	if want == models.SeverityCritical {
		return have == models.SeverityCritical
	}
	return true
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, action := range existing {
		seen[action] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
