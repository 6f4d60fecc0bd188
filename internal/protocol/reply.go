package protocol

import (
	"fmt"
	"io"
	"strings"
)

// Status is the outcome class of a command, independent of wire codes.
type Status int

const (
	StatusOK Status = iota
	StatusOKData
	StatusAuthRequired
	StatusForbidden
	StatusNotFound
	StatusBadArgument
	StatusConflict
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOKData:
		return "ok-with-data"
	case StatusAuthRequired:
		return "auth-required"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not-found"
	case StatusBadArgument:
		return "bad-argument"
	case StatusConflict:
		return "conflict"
	default:
		return "internal-error"
	}
}

type Line struct {
	Code int
	Text string
}

func (l Line) String() string {
	return fmt.Sprintf("%d %s", l.Code, l.Text)
}

// Reply is everything a command sends back. Multi-line replies end with
// their summary line.
type Reply struct {
	Status Status
	Lines  []Line
}

func reply(status Status, code int, format string, args ...any) Reply {
	return Reply{Status: status, Lines: []Line{{Code: code, Text: fmt.Sprintf(format, args...)}}}
}

// Code is the code of the final line.
func (r Reply) Code() int {
	if len(r.Lines) == 0 {
		return 0
	}
	return r.Lines[len(r.Lines)-1].Code
}

func (r Reply) String() string {
	var b strings.Builder
	for _, line := range r.Lines {
		b.WriteString(line.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (r Reply) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}

var (
	replyNotAuthenticated = Reply{Status: StatusAuthRequired, Lines: []Line{{Code: 401, Text: "Not Authenticated"}}}
	replyAuthFailure      = Reply{Status: StatusAuthRequired, Lines: []Line{{Code: 401, Text: "Auth Failure"}}}
	replyAuthOK           = Reply{Status: StatusOK, Lines: []Line{{Code: 200, Text: "Auth OK"}}}
	replyNotCoke          = Reply{Status: StatusForbidden, Lines: []Line{{Code: 403, Text: "Not in coke"}}}
	replyNotWheel         = Reply{Status: StatusForbidden, Lines: []Line{{Code: 403, Text: "Not Wheel"}}}
	replyBadItem          = Reply{Status: StatusNotFound, Lines: []Line{{Code: 406, Text: "Bad Item ID"}}}
	replyUnknownCommand   = Reply{Status: StatusBadArgument, Lines: []Line{{Code: 400, Text: "Unknown Command"}}}
)

func internalError(text string) Reply {
	return reply(StatusInternalError, 500, "%s", text)
}
