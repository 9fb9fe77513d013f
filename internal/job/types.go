// Package job drives one query job through the SKY API: validate the
// descriptor, submit, poll until terminal, fetch the result artifact.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Mode distinguishes the two submission shapes.
type Mode string

const (
	// ModeStandard executes a saved query identified by id/product/module.
	ModeStandard Mode = "standard"
	// ModeGenerated executes an inline ad-hoc query body.
	ModeGenerated Mode = "generated"
)

// Descriptor is one inbound job request, decoded from a queue JSON file.
// Read-only once picked up.
type Descriptor struct {
	// Standard mode.
	ID      json.Number `json:"id,omitempty"`
	Product string      `json:"product,omitempty"`
	Module  string      `json:"module,omitempty"`

	// Generated mode: the inline query body, passed through verbatim.
	Query json.RawMessage `json:"query,omitempty"`

	// Execution options, optional in both modes.
	UXMode                          string          `json:"ux_mode,omitempty"`
	OutputFormat                    string          `json:"output_format,omitempty"`
	FormattingMode                  string          `json:"formatting_mode,omitempty"`
	SQLGenerationMode               string          `json:"sql_generation_mode,omitempty"`
	UseStaticQueryIDSet             *bool           `json:"use_static_query_id_set,omitempty"`
	ResultsFileName                 string          `json:"results_file_name,omitempty"`
	AskFields                       json.RawMessage `json:"ask_fields,omitempty"`
	DisplayCodeTableLongDescription *bool           `json:"display_code_table_long_description,omitempty"`
	TimeZoneOffsetInMinutes         *int            `json:"time_zone_offset_in_minutes,omitempty"`
}

// Mode reports the submission shape: a descriptor with an inline query body
// is generated, everything else is standard.
func (d *Descriptor) Mode() Mode {
	if len(d.Query) > 0 && string(d.Query) != "null" {
		return ModeGenerated
	}

	return ModeStandard
}

// Synchronous reports whether the descriptor asks for inline polling.
// The default is asynchronous, matching the API.
func (d *Descriptor) Synchronous() bool {
	return d.UXMode == "Synchronous"
}

// OutputName is the desired artifact name, defaulting to "query_results"
// (extension inferred at download time).
func (d *Descriptor) OutputName() string {
	if d.ResultsFileName != "" {
		return d.ResultsFileName
	}

	return "query_results"
}

// Validate rejects a descriptor missing required fields before any network
// call is made.
func (d *Descriptor) Validate() error {
	if d.Mode() == ModeGenerated {
		return nil
	}

	var missing []string

	if d.ID == "" {
		missing = append(missing, "id")
	}

	if d.Product == "" {
		missing = append(missing, "product")
	}

	if d.Module == "" {
		missing = append(missing, "module")
	}

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}

	return nil
}

// ValidationError reports the required fields absent from a descriptor.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "job: descriptor missing required fields: " + strings.Join(e.Missing, ", ")
}

// Status is the server-reported job state.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusThrottled Status = "Throttled"

	// StatusTimedOut is synthesized locally when polling exhausts its
	// bounded wait; the server never reports it.
	StatusTimedOut Status = "TimedOut"
)

// Terminal reports whether polling stops at this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusThrottled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// FlexID is a job identifier that decodes from either a JSON string or a
// bare number.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("job: decoding job id: %w", err)
	}

	*f = FlexID(n.String())

	return nil
}

// Record is the server's view of a job: assigned identifier, current
// status, and (once completed with include_read_url) the signed result URL.
type Record struct {
	ID        FlexID `json:"id"`
	Status    Status `json:"status"`
	SignedURL string `json:"sas_uri"`
}

// ErrNoJobID means the submission response carried no job identifier —
// a protocol-contract violation, fatal for this job.
var ErrNoJobID = errors.New("job: no job id in submission response")

// TerminalError is a job that ended in a non-success terminal status.
// Reported, never retried automatically.
type TerminalError struct {
	Status Status
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("job: finished with status %s", e.Status)
}
