package tracker

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Due dates typed in a browser carry no zone; they are read in the local zone.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDueAt reads an RFC 3339 timestamp or a zone-less "YYYY-MM-DDTHH:MM[:SS]" local time.
// An empty string is the zero time.
func ParseDueAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if due, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return due, nil
	}
	for _, layout := range zonelessLayouts {
		if due, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return due, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid due_at %q", value)
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	type alias Assignment
	aux := struct {
		*alias
		DueAt string `json:"due_at"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	due, err := ParseDueAt(aux.DueAt)
	if err != nil {
		return err
	}
	a.DueAt = due
	return nil
}

func (na *NewAssignment) UnmarshalJSON(data []byte) error {
	type alias NewAssignment
	aux := struct {
		*alias
		DueAt string `json:"due_at"`
	}{alias: (*alias)(na)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	due, err := ParseDueAt(aux.DueAt)
	if err != nil {
		return err
	}
	na.DueAt = due
	return nil
}

func (ua *UpdateAssignment) UnmarshalJSON(data []byte) error {
	type alias UpdateAssignment
	aux := struct {
		*alias
		DueAt *string `json:"due_at"`
	}{alias: (*alias)(ua)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DueAt == nil {
		return nil
	}
	due, err := ParseDueAt(*aux.DueAt)
	if err != nil {
		return err
	}
	ua.DueAt = &due
	return nil
}
