package models

// FilteringTermType selects the matcher for a channel filter.
type FilteringTermType string

const (
	TermTypeUnset  FilteringTermType = ""
	TermTypeJinja2 FilteringTermType = "jinja2"
	TermTypeRegex  FilteringTermType = "regex"
	TermTypeLabels FilteringTermType = "labels"
)

func (t FilteringTermType) Valid() bool {
	switch t {
	case TermTypeUnset, TermTypeJinja2, TermTypeRegex, TermTypeLabels:
		return true
	}
	return false
}

// LabelPair is one required key/value label of a label filter.
type LabelPair struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}
