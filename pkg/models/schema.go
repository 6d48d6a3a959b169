package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateAlertEnvelope checks what routing needs before an alert is
// evaluated: an id to trace it by, an owner to pick filters from and a
// payload object to match against.
func ValidateAlertEnvelope(msg *AlertEnvelope) error {
	switch {
	case msg == nil:
		return &ValidationError{Field: "envelope", Message: "alert envelope cannot be nil"}
	case msg.ID == "":
		return &ValidationError{Field: "id", Message: "alert ID is required"}
	case msg.IntegrationID == "":
		return &ValidationError{Field: "integration_id", Message: "integration ID is required"}
	case msg.Payload == nil:
		return &ValidationError{Field: "payload", Message: "alert payload must be a JSON object"}
	}

	for key := range msg.Labels {
		if key == "" {
			return &ValidationError{Field: "labels", Message: "label keys cannot be empty"}
		}
	}
	return nil
}
