// Package errors provides structured error types for the js-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: a location path, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInvoke, errors.KindNotFound).
//		Path("sdk", "say_hello").
//		Detail("function %q not found", "say_hello").
//		Build()
//
// Or use convenience constructors for the taxonomy:
//
//	err := errors.Resolution("left-pad", "/app/main.mjs", "package not found", nil)
//	err := errors.ModuleContract("sdk", "default export has no init function")
//
// All errors implement the standard error interface and support errors.Is/As.
// KindOf and IsKind inspect the Kind anywhere in a wrapped chain.
package errors
