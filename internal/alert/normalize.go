package alert

import "strings"

// SeverityOf classifies a. The raw field is tried first, then the text of every
// contributing factor, then the fallback. It never fails.
func (c Classifier) SeverityOf(a *Alert) Severity {
	if raw := strings.ToLower(strings.TrimSpace(a.Severity)); raw != "" {
		if sev, ok := c.Severity.First(raw); ok {
			return sev
		}
	}

	if len(a.Items) > 0 {
		texts := make([]string, 0, len(a.Items))
		for _, it := range a.Items {
			texts = append(texts, strings.ToLower(it.Label+" "+it.Detail))
		}
		if sev, ok := c.ItemSeverity.FirstOfAny(texts); ok {
			return sev
		}
	}

	return c.FallbackSeverity
}

// StatusOf folds the raw status into one of the workflow keys.
func (c Classifier) StatusOf(a *Alert) StatusKey {
	raw := StatusKey(strings.ToLower(strings.TrimSpace(a.Status)))
	for _, k := range StatusKeys {
		if raw == k {
			return k
		}
	}
	return c.FallbackStatus
}

// Normalize derives severity and status for every alert. The returned values
// point into alerts, which must not be modified afterwards.
func (c Classifier) Normalize(alerts []Alert) []Normalized {
	out := make([]Normalized, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		out[i] = Normalized{Alert: a, Severity: c.SeverityOf(a), Status: c.StatusOf(a)}
	}
	return out
}

// NormalizeSeverity classifies a with the default policy.
func NormalizeSeverity(a *Alert) Severity {
	return DefaultClassifier.SeverityOf(a)
}

// NormalizeStatus folds the raw status of a with the default policy.
func NormalizeStatus(a *Alert) StatusKey {
	return DefaultClassifier.StatusOf(a)
}

// Normalize derives severity and status for every alert with the default policy.
func Normalize(alerts []Alert) []Normalized {
	return DefaultClassifier.Normalize(alerts)
}
