//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get returns the value of the named Worker variable or secret.
// Workers bindings cannot distinguish unset from empty, so empty means unset.
func Get(name string) (string, bool) {
	v := cloudflare.Getenv(name)
	return v, v != ""
}
