package preflight

import "strconv"

// Result of a check
type Result struct {
	Status Status
	Check  string
	Error  error
}

// MappedResults are results by their status
type MappedResults struct {
	Passed   []Result
	Warning  []Result
	Critical []Result
	Skipped  []Result
}

// NewMappedResults returns an empty result set.
func NewMappedResults() *MappedResults {
	return &MappedResults{
		Passed:   make([]Result, 0),
		Warning:  make([]Result, 0),
		Critical: make([]Result, 0),
		Skipped:  make([]Result, 0),
	}
}

// AddResult files a result under its status.
func (mr *MappedResults) AddResult(result Result) {
	switch result.Status {
	case StatusPassed:
		mr.Passed = append(mr.Passed, result)
	case StatusWarning:
		mr.Warning = append(mr.Warning, result)
	case StatusCritical:
		mr.Critical = append(mr.Critical, result)
	default:
		mr.Skipped = append(mr.Skipped, result)
	}
}

// All returns results ordered critical, warning, passed, skipped.
func (mr *MappedResults) All() []Result {
	out := make([]Result, 0, len(mr.Critical)+len(mr.Warning)+len(mr.Passed)+len(mr.Skipped))
	out = append(out, mr.Critical...)
	out = append(out, mr.Warning...)
	out = append(out, mr.Passed...)
	return append(out, mr.Skipped...)
}

// Status of a check
type Status int

const (
	StatusPassed Status = iota
	StatusWarning
	StatusCritical
	StatusSkipped
)

// String returns the status as a string
func (s Status) String() string {
	switch s {
	case StatusCritical:
		return "Critical"
	case StatusWarning:
		return "Warning"
	case StatusPassed:
		return "Pass"
	case StatusSkipped:
		return "Skipped"
	default:
		return "unknown status value " + strconv.Itoa(int(s))
	}
}
