package review

import (
	"github.com/sevigo/regression-warden/internal/core"
)

// ActionPlan is the set of side effects a severity entitles the job to.
type ActionPlan struct {
	Store   bool
	Comment bool
	Reject  bool
}

// PolicyFor maps a severity to its action plan. The mapping is a fixed
// table, not a side-effecting decision:
//
//	blocking -> store, comment, reject
//	warning  -> store, comment
//	info     -> store
func PolicyFor(s core.Severity) ActionPlan {
	switch s {
	case core.SeverityBlocking:
		return ActionPlan{Store: true, Comment: true, Reject: true}
	case core.SeverityWarning:
		return ActionPlan{Store: true, Comment: true}
	default:
		return ActionPlan{Store: true}
	}
}
