package jotform

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FormFields maps record fields to question names of one form. Name is a
// compound full-name question; the FirstName/MiddleName/LastName entries
// are used when a form asks for them separately.
type FormFields struct {
	MnID          string `yaml:"mn_id"`
	Name          string `yaml:"name"`
	FirstName     string `yaml:"first_name"`
	MiddleName    string `yaml:"middle_name"`
	LastName      string `yaml:"last_name"`
	PreferredName string `yaml:"preferred_name"`
	Phone         string `yaml:"phone"`
	Email         string `yaml:"email"`
	PersonalEmail string `yaml:"personal_email"`
	UWEmail       string `yaml:"uw_email"`
}

// FieldMap holds the question mapping for both forms.
type FieldMap struct {
	Signup FormFields `yaml:"signup"`
	Setup  FormFields `yaml:"setup"`
}

// DefaultFieldMap returns the question names used by the live forms.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Signup: FormFields{
			MnID:          "mnId",
			Name:          "mentorName",
			PreferredName: "preferredName",
			Phone:         "phoneNumber",
			PersonalEmail: "personalEmail",
			UWEmail:       "uwEmail",
		},
		Setup: FormFields{
			MnID:  "mnId",
			Name:  "name",
			Phone: "phoneNumber",
			Email: "email",
		},
	}
}

// LoadFieldMap reads a YAML field map from path. Entries missing from the
// file keep their default question names. An empty path yields the
// defaults.
func LoadFieldMap(path string) (FieldMap, error) {
	if path == "" {
		return DefaultFieldMap(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FieldMap{}, eris.Wrapf(err, "jotform: read field map %s", path)
	}
	return ParseFieldMap(data)
}

// ParseFieldMap decodes a YAML field map over the defaults.
func ParseFieldMap(data []byte) (FieldMap, error) {
	fm := DefaultFieldMap()
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return FieldMap{}, eris.Wrap(err, "jotform: parse field map")
	}
	return fm, nil
}

// Text returns the answer to question as a trimmed string. Phone answers
// given as parts are joined; other compound answers are joined with spaces
// in key order.
func (s Submission) Text(question string) string {
	if question == "" {
		return ""
	}
	switch v := s.Answers[question].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if full, ok := v["full"].(string); ok {
			return strings.TrimSpace(full)
		}
		if _, ok := v["phone"]; ok {
			return strings.TrimSpace(str(v["area"]) + str(v["phone"]))
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if p := strings.TrimSpace(str(v[k])); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, " ")
	default:
		return strings.TrimSpace(str(v))
	}
}

// Name splits a compound name answer into first, middle and last. A plain
// string answer is split on whitespace: the first word is the first name,
// the last word the last name and anything between the middle name.
func (s Submission) Name(question string) (first, middle, last string) {
	if question == "" {
		return "", "", ""
	}
	switch v := s.Answers[question].(type) {
	case map[string]any:
		return strings.TrimSpace(str(v["first"])), strings.TrimSpace(str(v["middle"])), strings.TrimSpace(str(v["last"]))
	case string:
		words := strings.Fields(v)
		switch len(words) {
		case 0:
			return "", "", ""
		case 1:
			return words[0], "", ""
		default:
			return words[0], strings.Join(words[1:len(words)-1], " "), words[len(words)-1]
		}
	}
	return "", "", ""
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
