package commands

import (
	"fmt"
	"strings"

	"github.com/projectns/projectns/internal/accounts"
)

// FaultCode classifies a failed command.
type FaultCode string

const (
	FaultNeedMoreParams FaultCode = "needmoreparams"
	FaultBadParams      FaultCode = "badparams"
	FaultNoSuchTarget   FaultCode = "nosuch_target"
	FaultAlreadyExists  FaultCode = "alreadyexists"
	FaultNoChange       FaultCode = "nochange"
	FaultNoSuchKey      FaultCode = "nosuch_key"
	FaultNoPrivs        FaultCode = "noprivs"
)

// Privileges checked by the command surface.
const (
	PrivAdmin  = "project:admin"
	PrivAuspex = "project:auspex"
)

// Fault is the failure half of a Result. Message repeats the first output line.
type Fault struct {
	Code    FaultCode `json:"code"`
	Message string    `json:"message"`
}

// Result is everything a command said back to its caller.
type Result struct {
	Lines []string `json:"lines"`
	Fault *Fault   `json:"fault,omitempty"`
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.Fault == nil }

// Outcome is the metric label for the result.
func (r Result) Outcome() string {
	if r.Fault == nil {
		return "ok"
	}
	return string(r.Fault.Code)
}

// Source identifies who issued a command.
type Source struct {
	Account    accounts.Ref
	Privileges []string
	RequestID  string
}

// Has reports whether the source holds priv. Admins implicitly hold auspex.
func (s Source) Has(priv string) bool {
	for _, p := range s.Privileges {
		if p == priv || (p == PrivAdmin && priv == PrivAuspex) {
			return true
		}
	}
	return false
}

// ParseLine splits a raw command line into its verb and arguments.
func ParseLine(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToUpper(fields[0]), fields[1:]
}

// reply accumulates output lines for one command.
type reply struct {
	lines []string
}

func (r *reply) say(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *reply) ok() Result {
	return Result{Lines: r.lines}
}

func (r *reply) fail(code FaultCode, format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	r.lines = append(r.lines, msg)
	return Result{Lines: r.lines, Fault: &Fault{Code: code, Message: msg}}
}

func fail(code FaultCode, format string, args ...any) Result {
	return (&reply{}).fail(code, format, args...)
}

// needMore is the standard two-line "insufficient parameters" failure.
func needMore(what, syntax string) Result {
	res := fail(FaultNeedMoreParams, "Insufficient parameters for %s.", what)
	res.Lines = append(res.Lines, "Syntax: "+syntax)
	return res
}

// badParams is the standard two-line "invalid parameters" failure.
func badParams(what, syntax string) Result {
	res := fail(FaultBadParams, "Invalid parameters for %s.", what)
	res.Lines = append(res.Lines, "Syntax: "+syntax)
	return res
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
