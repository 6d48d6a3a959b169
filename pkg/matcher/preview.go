package matcher

import (
	"fmt"
	"strings"

	"switchyard/pkg/models"
)

// PreviewAsTemplate renders any filter as the equivalent routing template.
// It returns "" when there is nothing to preview.
func PreviewAsTemplate(spec Spec) string {
	switch spec.TermType {
	case models.TermTypeJinja2:
		return spec.Term
	case models.TermTypeRegex:
		escaped := strings.ReplaceAll(spec.Term, `"`, `\"`)
		return fmt.Sprintf(`{{ payload | json_dumps | regex_search("%s") }}`, escaped)
	case models.TermTypeLabels:
		if len(spec.Labels) == 0 {
			return ""
		}
		conditions := make([]string, len(spec.Labels))
		for i, p := range spec.Labels {
			conditions[i] = fmt.Sprintf("labels.%s and labels.%s == '%s'", p.Key, p.Key, p.Value)
		}
		return fmt.Sprintf("{{ %s }}", strings.Join(conditions, " and "))
	}
	return ""
}
