package alert

import (
	"strings"

	"github.com/linnemanlabs/watchtower/internal/scope"
)

// MatchesScopeText reports whether token appears, case-insensitively, in the
// title, activity, location or any contributing factor of a.
func MatchesScopeText(a *Alert, token string) bool {
	token = strings.ToLower(token)

	var b strings.Builder
	b.WriteString(a.Title)
	b.WriteByte(' ')
	b.WriteString(a.Activity)
	b.WriteByte(' ')
	b.WriteString(a.Location)
	for _, it := range a.Items {
		b.WriteByte(' ')
		b.WriteString(it.Label)
		b.WriteByte(' ')
		b.WriteString(it.Detail)
	}
	return strings.Contains(strings.ToLower(b.String()), token)
}

// InScope reports whether a passes sel. The project must match when selected.
// Below the project only the deepest selected level is checked, against either
// the structured scope code or the free text of the alert.
func InScope(a *Alert, sel scope.Selection) bool {
	if sel.ProjectID != "" && a.Project() != sel.ProjectID {
		return false
	}

	var s Scope
	if a.Metadata.Scope != nil {
		s = *a.Metadata.Scope
	}

	var (
		code string
		ref  *Ref
	)
	switch {
	case sel.ProcessID != "":
		code, ref = sel.ProcessID, s.Process
	case sel.SOWID != "":
		code, ref = sel.SOWID, s.SOW
	case sel.ContractID != "":
		code, ref = sel.ContractID, s.Contract
	default:
		return true
	}

	if ref != nil && ref.Code == code {
		return true
	}
	return MatchesScopeText(a, code)
}

// FilterByScope returns the alerts that pass sel, preserving order.
func FilterByScope(alerts []Alert, sel scope.Selection) []Alert {
	out := make([]Alert, 0, len(alerts))
	for i := range alerts {
		if InScope(&alerts[i], sel) {
			out = append(out, alerts[i])
		}
	}
	return out
}
