// Package marshal converts native tagged arguments into engine values.
//
// Each native argument arrives as a (pointer, tag, size) triple. Decode
// turns the triples into Arg values, reading native memory only inside
// one small helper per tag. Decoding is total: an unknown tag, a null
// pointer for a non-None tag, or a string that is not valid UTF-8 yields
// an undefined argument rather than failing the call. A Bool slot carries
// its flag in the pointer value itself; a null Bool pointer follows the
// null rule and becomes undefined, not false.
//
// Under the Strict policy the first degraded slot fails the call instead.
//
// Positional and Invocation build the two call vocabularies: plain
// arguments for init, and (state, ...args, correlationId) for module
// functions.
package marshal
