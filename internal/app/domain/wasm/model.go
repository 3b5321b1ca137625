// Package wasm holds the CustomWasmFilter entity: team-scoped WebAssembly
// filter bytecode plus the config schema a Platform API route can bind
// settings against.
package wasm

import "time"

type AttachmentPoint string

const (
	AttachListener    AttachmentPoint = "listener"
	AttachVirtualHost AttachmentPoint = "virtual_host"
	AttachRoute       AttachmentPoint = "route"
)

type Runtime string

const (
	RuntimeV8       Runtime = "v8"
	RuntimeWasmtime Runtime = "wasmtime"
	RuntimeWAMR     Runtime = "wamr"
	RuntimeNull     Runtime = "null"
)

type FailurePolicy string

const (
	FailClosed FailurePolicy = "fail_closed"
	FailOpen   FailurePolicy = "fail_open"
)

// CustomWasmFilter is ≤ 10 MiB of WebAssembly bytecode beginning with magic
// bytes 00 61 73 6D ("\0asm"), content-addressed by WasmSHA256.
type CustomWasmFilter struct {
	ID                   string
	Team                 string
	Name                 string
	DisplayName          string
	Description          string
	WasmBinary           []byte
	WasmSHA256           string
	WasmSizeBytes        int
	ConfigSchema         map[string]interface{}
	PerRouteConfigSchema map[string]interface{}
	UIHints              map[string]interface{}
	AttachmentPoints     []AttachmentPoint
	Runtime              Runtime
	FailurePolicy        FailurePolicy
	Version              int
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
