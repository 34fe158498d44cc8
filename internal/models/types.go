package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WebhookPayload represents the structure of an incoming form webhook from Tally.
type WebhookPayload struct {
	EventID   string      `json:"eventId"`
	EventType string      `json:"eventType"`
	CreatedAt string      `json:"createdAt"`
	Data      *Submission `json:"data"`
}

// Submission is the form response carried in the payload's data object.
type Submission struct {
	ResponseID   string  `json:"responseId"`
	SubmissionID string  `json:"submissionId"`
	RespondentID string  `json:"respondentId"`
	FormID       string  `json:"formId"`
	FormName     string  `json:"formName"`
	Fields       []Field `json:"fields"`
}

// ExternalID returns the identifier used to deduplicate repeated deliveries.
func (s *Submission) ExternalID() string {
	if s.ResponseID != "" {
		return s.ResponseID
	}
	return s.SubmissionID
}

// Field is one label/value pair of a submission.
type Field struct {
	Key   string     `json:"key"`
	Label string     `json:"label"`
	Type  string     `json:"type"`
	Value FieldValue `json:"value"`
}

// FieldValue holds either a single string or a list of strings.
// Numbers and booleans are kept in their JSON text form; null is empty.
type FieldValue struct {
	Single string
	List   []string
	IsList bool
}

// String returns the scalar form; list values are joined with ", ".
func (v FieldValue) String() string {
	if v.IsList {
		return strings.Join(v.List, ", ")
	}
	return v.Single
}

// Strings returns the list form; a non-empty scalar becomes a one-element list.
func (v FieldValue) Strings() []string {
	if v.IsList {
		return v.List
	}
	if v.Single == "" {
		return []string{}
	}
	return []string{v.Single}
}

// UnmarshalJSON accepts strings, arrays, numbers, booleans and null.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = FieldValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.Single)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		v.IsList = true
		v.List = make([]string, 0, len(raw))
		for _, item := range raw {
			var inner FieldValue
			if err := inner.UnmarshalJSON(item); err != nil {
				return err
			}
			if s := inner.String(); s != "" {
				v.List = append(v.List, s)
			}
		}
		return nil
	case '{':
		// File uploads and similar structured answers are not relayed.
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			v.Single = n.String()
			return nil
		}
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("unsupported field value %s", string(data))
		}
		v.Single = strconv.FormatBool(b)
		return nil
	}
}

// MarshalJSON writes the value back in the shape it arrived in.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.IsList {
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Single)
}

// Text builds a scalar FieldValue.
func Text(s string) FieldValue { return FieldValue{Single: s} }

// Choices builds a list FieldValue.
func Choices(items ...string) FieldValue { return FieldValue{List: items, IsList: true} }
