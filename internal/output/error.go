package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// DescribeError converts err into its output shape. Errors outside the
// warden taxonomy are reported as GENERAL_ERROR.
func DescribeError(err error) ErrorDetail {
	var we *wardenerr.WardenError
	if !wardenerr.As(err, &we) {
		return ErrorDetail{
			Code:     wardenerr.ErrGeneral.Code,
			Message:  err.Error(),
			ExitCode: wardenerr.ExitGeneral,
		}
	}
	d := ErrorDetail{
		Code:       we.Code,
		Message:    we.Message,
		Details:    we.Details,
		Suggestion: we.Suggestion,
		ExitCode:   we.ExitCode,
	}
	if we.Cause != nil {
		if cause := describeCause(we.Cause); cause != "" {
			d.Message = d.Message + ": " + cause
		}
	}
	return d
}

// describeCause returns the message of a nested warden error, so wrapped
// transport failures keep their reason. Foreign causes are left out: they
// may quote input.
func describeCause(err error) string {
	var we *wardenerr.WardenError
	if wardenerr.As(err, &we) {
		return we.Message
	}
	return ""
}

// FormatError writes err to w.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	d := DescribeError(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}
	_, werr := io.WriteString(w, sb.String())
	return werr
}

// FormatSuccess writes a one-line success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
