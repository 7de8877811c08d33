package collection

import (
	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// ErrorKind categorizes indexing errors.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindStructural marks a station whose attribute file is missing,
	// ambiguous or unreadable. The station is indexed with defaults.
	ErrorKindStructural
	// ErrorKindFormat marks a sensor file excluded from the index.
	ErrorKindFormat
	// ErrorKindReconciliation marks a sensor file excluded because a
	// required key had no value after depth reconciliation.
	ErrorKindReconciliation
	// ErrorKindSetup marks a station folder that could not be scanned at all.
	ErrorKindSetup
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindStructural:
		return "structural"
	case ErrorKindFormat:
		return "format"
	case ErrorKindReconciliation:
		return "reconciliation"
	case ErrorKindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// ParseErrorKind parses a string into an ErrorKind.
func ParseErrorKind(s string) ErrorKind {
	switch s {
	case "structural":
		return ErrorKindStructural
	case "format":
		return ErrorKindFormat
	case "reconciliation":
		return ErrorKindReconciliation
	case "setup":
		return ErrorKindSetup
	default:
		return ErrorKindUnknown
	}
}

// ErrorRecord is one non-fatal indexing problem.
type ErrorRecord struct {
	// Path is the sensor file or station folder, relative to the archive.
	Path    string       `json:"path"`
	Message string       `json:"message"`
	Kind    ErrorKind    `json:"kind"`
	Code    ismnerr.Code `json:"code,omitempty"`
}

// NewErrorRecord classifies err for path.
func NewErrorRecord(path string, err error) ErrorRecord {
	rec := ErrorRecord{Path: path, Message: message(err), Code: ismnerr.GetCode(err)}
	switch {
	case ismnerr.IsCode(err, ismnerr.CodeMissingKey):
		rec.Kind = ErrorKindReconciliation
	case ismnerr.IsStructural(err):
		rec.Kind = ErrorKindStructural
	case ismnerr.IsFormat(err):
		rec.Kind = ErrorKindFormat
	case ismnerr.IsSetup(err):
		rec.Kind = ErrorKindSetup
	default:
		rec.Kind = ErrorKindFormat
	}
	return rec
}

// message drops the path context the record already carries.
func message(err error) string {
	if e, ok := err.(*ismnerr.Error); ok && e.Context["path"] != nil {
		cp := *e
		cp.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			if k != "path" {
				cp.Context[k] = v
			}
		}
		return cp.Error()
	}
	return err.Error()
}

// Line formats the record for the error log.
func (r ErrorRecord) Line() string {
	return r.Path + ": " + r.Message
}

func (r ErrorRecord) String() string { return r.Line() }

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	*k = ParseErrorKind(string(b))
	return nil
}
