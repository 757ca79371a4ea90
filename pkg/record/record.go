package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ID is a record identifier that keeps the JSON kind (string or number) it was read with.
type ID struct {
	value   string
	numeric bool
}

func StringID(s string) ID {
	return ID{value: s}
}

func NumericID(n int64) ID {
	return ID{value: strconv.FormatInt(n, 10), numeric: true}
}

func (id ID) String() string {
	return id.value
}

func (id ID) IsZero() bool {
	return id.value == ""
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id must be a string or number: %w", err)
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}

// Entities maps an upstream NER category to the surface forms found for it.
type Entities map[string][]string

// UnmarshalJSON accepts a bare string where a list is expected.
func (e *Entities) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Entities, len(raw))
	for category, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[category] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err != nil {
			return fmt.Errorf("entities[%q]: expected list of strings", category)
		}
		out[category] = []string{single}
	}
	*e = out
	return nil
}

// Document is one clinical record with the label shape of a given stage.
type Document[L any] struct {
	ID       ID           `json:"id"`
	Text     string       `json:"text"`
	Entities Entities     `json:"entities"`
	Labels   map[string]L `json:"labels"`
}

type (
	Raw        = Document[json.RawMessage]
	Classified = Document[ClassifiedLabel]
	Retrieved  = Document[RetrievedLabel]
	Selected   = Document[SelectedLabel]
	Audited    = Document[AuditedLabel]
)

type documentJSON[L any] struct {
	ID       *ID          `json:"id"`
	LegacyID *ID          `json:"prontuario_id"`
	Text     string       `json:"text"`
	Entities Entities     `json:"entities"`
	Labels   map[string]L `json:"labels"`
}

func (d *Document[L]) UnmarshalJSON(b []byte) error {
	var raw documentJSON[L]
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var id ID
	switch {
	case raw.ID != nil && !raw.ID.IsZero():
		id = *raw.ID
	case raw.LegacyID != nil:
		id = *raw.LegacyID
	}
	*d = Document[L]{ID: id, Text: raw.Text, Entities: raw.Entities, Labels: raw.Labels}
	return nil
}

// Project carries a document into the next stage with a new label set.
func Project[In, Out any](doc Document[In], labels map[string]Out) Document[Out] {
	if labels == nil {
		labels = map[string]Out{}
	}
	entities := doc.Entities
	if entities == nil {
		entities = Entities{}
	}
	return Document[Out]{ID: doc.ID, Text: doc.Text, Entities: entities, Labels: labels}
}

// SortedKeys returns label keys in byte order, the processing order of every stage.
func SortedKeys[L any](labels map[string]L) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errMissingID = errors.New("record id missing")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func Validate[L any](doc Document[L]) error {
	if doc.ID.IsZero() {
		return ValidationError{reason: errMissingID}
	}
	return nil
}
