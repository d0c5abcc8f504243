package registry

import (
	"strings"

	"github.com/flowrelay/flowrelay/core"
)

// rule maps a keyword set to a capability type. A workflow name matching
// any keyword of a rule is classified to that rule's type.
type rule struct {
	keywords []string
	t        core.CapabilityType
}

// classificationRules is the ordered strategy table used to classify
// discovered workflow names. Rules are evaluated top to bottom and the
// first match wins, so earlier rules shadow later ones (note "report" is
// claimed by the data-analysis rule before report-generation's own rule).
// Names matching no rule are dropped from the index, never defaulted.
var classificationRules = []rule{
	{[]string{"gerald", "handoff"}, core.TypeDataAnalysis},
	{[]string{"homeautomation", "home automation"}, core.TypeHomeAutomation},
	{[]string{"data", "analysis", "insights", "metrics", "report"}, core.TypeDataAnalysis},
	{[]string{"document", "process", "extract", "upload"}, core.TypeDocumentProcessing},
	{[]string{"task", "project", "manage", "organize"}, core.TypeTaskManagement},
	{[]string{"approval", "review", "authorize"}, core.TypeApproval},
	{[]string{"report", "generate", "create"}, core.TypeReportGeneration},
}

// Classify assigns a capability type to a workflow display name using the
// ordered rule table. The second return value is false when no rule
// matched and the workflow must be excluded from the lookup index.
func Classify(name string) (core.CapabilityType, bool) {
	lowered := strings.ToLower(name)
	for _, r := range classificationRules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return r.t, true
			}
		}
	}
	return core.TypeUnclassified, false
}
