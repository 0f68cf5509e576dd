package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseInit     Phase = "init"     // host handshake and engine construction
	PhaseResolve  Phase = "resolve"  // specifier resolution
	PhaseLoad     Phase = "load"     // reading and evaluating module source
	PhaseRegister Phase = "register" // module registration
	PhaseInvoke   Phase = "invoke"   // function invocation
	PhaseMarshal  Phase = "marshal"  // native argument decoding
	PhaseAsync    Phase = "async"    // background work
	PhasePost     Phase = "post"     // native message delivery
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseRuntime  Phase = "runtime"  // engine lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindVersionMismatch    Kind = "version_mismatch"
	KindResolution         Kind = "resolution"
	KindLoadFailed         Kind = "load_failed"
	KindModuleContract     Kind = "module_contract"
	KindNotFound           Kind = "not_found"
	KindArgumentDecode     Kind = "argument_decode"
	KindExecution          Kind = "execution"
	KindChannelPost        Kind = "channel_post"
	KindDisposed           Kind = "disposed"
	KindNotInitialized     Kind = "not_initialized"
	KindAlreadyInitialized Kind = "already_initialized"
	KindInvalidInput       Kind = "invalid_input"
	KindTypeMismatch       Kind = "type_mismatch"
	KindInvalidUTF8        Kind = "invalid_utf8"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind regardless of phase.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (module, function, argument index)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// VersionMismatch reports a failed host API handshake.
func VersionMismatch(hostMajor, hostMinor, wantMajor, wantMinor int32) *Error {
	return &Error{
		Phase: PhaseInit,
		Kind:  KindVersionMismatch,
		Detail: fmt.Sprintf("host API version %d.%d is not compatible with bridge API %d.%d",
			hostMajor, hostMinor, wantMajor, wantMinor),
	}
}

// Resolution creates a specifier resolution error
func Resolution(specifier, referrer, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindResolution,
		Path:   []string{specifier},
		Detail: fmt.Sprintf("%s (from %s)", detail, referrer),
		Value:  specifier,
		Cause:  cause,
	}
}

// LoadFailed creates an I/O error for module source
func LoadFailed(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailed,
		Detail: fmt.Sprintf("failed to load %s", path),
		Value:  path,
		Cause:  cause,
	}
}

// ModuleContract creates an error for a module that does not export
// the expected shape.
func ModuleContract(module, detail string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindModuleContract,
		Path:   []string{module},
		Detail: detail,
	}
}

// ArgumentDecode creates an argument decoding error for a slot
func ArgumentDecode(index int, detail string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindArgumentDecode,
		Path:   []string{fmt.Sprintf("arg[%d]", index)},
		Detail: detail,
		Value:  index,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Execution wraps an uncaught script exception
func Execution(phase Phase, path []string, message string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExecution,
		Path:   path,
		Detail: message,
		Cause:  cause,
	}
}

// ChannelPost reports a failed native message delivery
func ChannelPost(kind string, callbackID int32) *Error {
	return &Error{
		Phase:  PhasePost,
		Kind:   KindChannelPost,
		Detail: fmt.Sprintf("post %s message for callback %d failed", kind, callbackID),
		Value:  callbackID,
	}
}

// TypeMismatch reports a module whose derived type disagrees with the
// requested one.
func TypeMismatch(path, derived, requested string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindTypeMismatch,
		Path:   []string{path},
		Detail: fmt.Sprintf("module is %s but %s was requested", derived, requested),
	}
}

// Disposed reports use of an engine after dispose
func Disposed() *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindDisposed,
		Detail: "engine has been disposed",
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// AlreadyInitialized reports a second init on a live engine
func AlreadyInitialized(component string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindAlreadyInitialized,
		Detail: fmt.Sprintf("%s already initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
