// Package jsbridge embeds a JavaScript engine behind a C-callable boundary.
//
// A native host loads the shared library built from cmd/libjsbridge,
// performs a version handshake, registers script modules by name and
// calls their functions with tagged native arguments. Scripts talk back
// to the host by posting messages to a port the host supplied at init.
//
// # Architecture Overview
//
//	jsbridge/            Root package with API version constants
//	├── engine/          Engine lifecycle, executor loop, module registry and script globals
//	├── resolver/        Import specifier to file path resolution
//	├── marshal/         Tagged native argument decoding
//	├── async/           Bounded background worker pool and exactly-once settlement
//	├── message/         Outbound message shapes, ports and the CBOR payload codec
//	├── wasmmod/         Binary modules importable from script, backed by wazero
//	├── session/         Handle table for live engines
//	├── config/          YAML configuration and logger construction
//	├── metrics/         Prometheus collectors
//	├── watch/           Hot reload of file-registered modules
//	├── errors/          Structured error types
//	└── cmd/             Shared library and CLI
//
// # Quick Start
//
// Embed the engine directly from Go:
//
//	e := engine.New()
//	defer e.Dispose()
//
//	err := e.Init(ctx, engine.HostAPI{Version: jsbridge.API(), Port: port})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = e.Register(ctx, "sdk", "./sdk.mjs", []marshal.Arg{marshal.String("prod")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := e.Invoke(ctx, "sdk", "greet", 1, []marshal.Arg{marshal.String("bob")})
package jsbridge
