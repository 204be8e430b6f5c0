package types

import (
	"encoding/json"

	"github.com/juju/errors"
)

type ProcessStatus int32

const (
	New          ProcessStatus = 0
	Querying     ProcessStatus = 1
	Extracting   ProcessStatus = 2
	Loading      ProcessStatus = 3
	Transferring ProcessStatus = 4
	Acking       ProcessStatus = 5
	Processing   ProcessStatus = 6
	Ok           ProcessStatus = 7
	Error        ProcessStatus = 8
	Creating     ProcessStatus = 9
)

var statusDescriptions = map[ProcessStatus]string{
	New:          "New",
	Querying:     "Querying",
	Extracting:   "Extracting",
	Loading:      "Loading",
	Transferring: "Transferring",
	Acking:       "Acking",
	Processing:   "Processing",
	Ok:           "Ok",
	Error:        "Error",
	Creating:     "Creating",
}

// AllProcessStatuses lists every status in lifecycle order.
func AllProcessStatuses() []ProcessStatus {
	return []ProcessStatus{New, Querying, Extracting, Loading, Transferring, Acking, Processing, Ok, Error, Creating}
}

func (s ProcessStatus) String() string {
	if d, exists := statusDescriptions[s]; exists {
		return d
	}
	return "Unknown"
}

// IsTerminal reports whether the status ends an activity.
func (s ProcessStatus) IsTerminal() bool {
	return s == Ok || s == Error
}

func ProcessStatusFromDescription(description string) (ProcessStatus, bool) {
	for status, d := range statusDescriptions {
		if d == description {
			return status, true
		}
	}
	return New, false
}

func (s ProcessStatus) MarshalText() ([]byte, error) {
	if _, exists := statusDescriptions[s]; !exists {
		return nil, errors.NotValidf("process status %d", int32(s))
	}
	return []byte(s.String()), nil
}

func (s *ProcessStatus) UnmarshalText(b []byte) error {
	status, ok := ProcessStatusFromDescription(string(b))
	if !ok {
		return errors.NotValidf("process status %q", string(b))
	}
	*s = status
	return nil
}

var (
	_ json.Marshaler = ProcessStatus(0)
)

func (s ProcessStatus) MarshalJSON() ([]byte, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return json.Marshal(string(b))
}

func (s *ProcessStatus) UnmarshalJSON(b []byte) error {
	var d string
	if err := json.Unmarshal(b, &d); err != nil {
		return errors.Trace(err)
	}
	return s.UnmarshalText([]byte(d))
}
