package payload

import (
	"strconv"

	"switchyard/pkg/models"
)

// Payload keys consulted when an alert carries no explicit label set.
// Alertmanager webhooks put them under commonLabels, Grafana alerts under labels.
var labelSourceKeys = []string{"labels", "commonLabels"}

// ResolveLabels returns the flat label mapping used by label matchers.
func ResolveLabels(alert *models.AlertEnvelope) map[string]string {
	if alert == nil {
		return map[string]string{}
	}
	if len(alert.Labels) > 0 {
		return alert.Labels
	}

	for _, key := range labelSourceKeys {
		raw, ok := alert.Payload[key].(map[string]interface{})
		if !ok {
			continue
		}
		labels := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := scalarString(v); ok {
				labels[k] = s
			}
		}
		if len(labels) > 0 {
			return labels
		}
	}

	return map[string]string{}
}

func scalarString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case nil:
		return "", false
	}
	switch Normalize(v).(type) {
	case int64, float64:
		s, err := Canonical(v)
		return s, err == nil
	}
	return "", false
}
