// Package resolver maps import specifiers to absolute module paths.
//
// File specifiers (".", "/", "./", "../", "file://") are joined against the
// referrer's directory. Bare specifiers are looked up by walking from the
// referrer's directory toward the root, checking <dir>/<packages>/<name> at
// each level; the nearest match wins. A matched package must carry a
// package.json whose main field (default "module") names an existing file.
//
// Module types are derived from the extension: .json is data, .wasm is
// binary, everything else is script. A caller that asks for a specific type
// gets a type mismatch error when the file disagrees.
package resolver
