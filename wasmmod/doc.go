// Package wasmmod loads .wasm binary modules with wazero so scripts can
// require them. Exported functions are exposed with numeric arguments
// and results; modules importing wasi_snapshot_preview1 get a WASI host
// instantiated on first use.
package wasmmod
