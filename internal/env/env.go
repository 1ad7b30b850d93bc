//go:build !js || !wasm

// Package env resolves configuration variables from the process environment,
// or from the Worker's bindings when compiled for Cloudflare Workers.
package env

import "os"

// Get returns the value of the named variable and whether it was set.
func Get(name string) (string, bool) {
	return os.LookupEnv(name)
}
