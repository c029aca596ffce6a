package metadata

import (
	"errors"
	"slices"
	"strings"

	"aeval/internal/domain"
)

var ErrNameRequired = errors.New("dataset name is required")

// FieldState is one editable field with the confidence of its last
// suggestion. Modified is set by manual edits and cleared when a suggestion
// is applied.
type FieldState struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Modified   bool    `json:"modified"`
}

type TagsState struct {
	Value      []string `json:"value"`
	Confidence float64  `json:"confidence"`
	Modified   bool     `json:"modified"`
}

// Editor holds the metadata being reviewed for one dataset.
type Editor struct {
	Name        FieldState `json:"name"`
	Description FieldState `json:"description"`
	Tags        TagsState  `json:"tags"`
}

func NewEditor(ds domain.Dataset) *Editor {
	return &Editor{
		Name:        FieldState{Value: ds.Name, Confidence: Confidence(FieldName)},
		Description: FieldState{Value: ds.Description, Confidence: Confidence(FieldDescription)},
		Tags:        TagsState{Value: append([]string{}, ds.Tags...), Confidence: Confidence(FieldTags)},
	}
}

func (e *Editor) SetName(v string) {
	e.Name.Value = v
	e.Name.Modified = true
}

func (e *Editor) SetDescription(v string) {
	e.Description.Value = v
	e.Description.Modified = true
}

// AddTag appends tag unless it is blank or already present. It reports
// whether the tag was added.
func (e *Editor) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(e.Tags.Value, tag) {
		return false
	}
	e.Tags.Value = append(e.Tags.Value, tag)
	e.Tags.Modified = true
	return true
}

func (e *Editor) RemoveTag(tag string) bool {
	i := slices.Index(e.Tags.Value, tag)
	if i < 0 {
		return false
	}
	e.Tags.Value = slices.Delete(slices.Clone(e.Tags.Value), i, i+1)
	e.Tags.Modified = true
	return true
}

// SetTags replaces the tag list, dropping blanks and duplicates.
func (e *Editor) SetTags(tags []string) {
	for _, t := range slices.Clone(e.Tags.Value) {
		if !slices.Contains(tags, t) {
			e.RemoveTag(t)
		}
	}
	for _, t := range tags {
		e.AddTag(t)
	}
}

// Modified lists the fields changed by hand since their last suggestion.
func (e *Editor) Modified() []Field {
	var out []Field
	if e.Name.Modified {
		out = append(out, FieldName)
	}
	if e.Description.Modified {
		out = append(out, FieldDescription)
	}
	if e.Tags.Modified {
		out = append(out, FieldTags)
	}
	return out
}

// Apply replaces a field with a suggestion.
func (e *Editor) Apply(s Suggestion) {
	switch s.Field {
	case FieldName:
		e.Name = FieldState{Value: s.Value, Confidence: s.Confidence}
	case FieldDescription:
		e.Description = FieldState{Value: s.Value, Confidence: s.Confidence}
	case FieldTags:
		e.Tags = TagsState{Value: append([]string{}, s.Tags...), Confidence: s.Confidence}
	}
}

// Dataset returns ds with the edited fields applied.
func (e *Editor) Dataset(ds domain.Dataset) domain.Dataset {
	ds.Name = strings.TrimSpace(e.Name.Value)
	ds.Description = strings.TrimSpace(e.Description.Value)
	ds.Tags = append([]string{}, e.Tags.Value...)
	return ds
}

// Validate reports whether the edited metadata can be saved.
func (e *Editor) Validate() error {
	if strings.TrimSpace(e.Name.Value) == "" {
		return ErrNameRequired
	}
	return nil
}
