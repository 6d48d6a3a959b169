package template

// Examples are representative routing terms. Every one must compile.
var Examples = map[string]string{
	"payload_regex":      `{{ payload | json_dumps | regex_search("critical") }}`,
	"severity_equals":    `{{ payload.severity == "critical" }}`,
	"label_pair":         `{{ labels.team and labels.team == 'database' }}`,
	"nested_field":       `{{ payload.commonLabels.env == "prod" }}`,
	"membership":         `{{ payload.status in ["firing", "pending"] }}`,
	"substring":          `{{ "disk" in payload.title | lower }}`,
	"numeric_threshold":  `{{ payload.value | float > 90 }}`,
	"has_field":          `{{ payload.runbook_url is defined }}`,
	"conditional_block":  `{% if payload.state == "alerting" %}true{% else %}false{% endif %}`,
	"combined":           `{{ (payload.severity == "critical" or payload.priority <= 1) and not payload.silenced }}`,
	"first_alert_status": `{{ payload.alerts[0].status == "firing" }}`,
}
