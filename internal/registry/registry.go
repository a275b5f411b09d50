// Package registry is the explicit adapter registration table that
// replaces ecosystem entry-point plugin discovery: constructors are
// registered by name at init time (this package's builtins.go registers the
// two reference adapters), and cmd/threatbusd instantiates only the plugins
// named in configuration.
package registry

import (
	"fmt"
	"sync"

	"github.com/adisbladis/threatbus/internal/appadapter"
	"github.com/adisbladis/threatbus/internal/backbone"
)

// AppConstructor builds an app adapter's Endpoint for the given host:port.
type AppConstructor func(host string, port int) (appadapter.Endpoint, error)

// BackboneConstructor builds a Backbone for the given broker URL.
type BackboneConstructor func(url string) (backbone.Backbone, error)

var (
	mu        sync.Mutex
	apps      = make(map[string]AppConstructor)
	backbones = make(map[string]BackboneConstructor)
)

// RegisterApp registers a named app-adapter Endpoint constructor. Intended
// to be called from an adapter package's init().
func RegisterApp(name string, ctor AppConstructor) {
	mu.Lock()
	defer mu.Unlock()
	apps[name] = ctor
}

// RegisterBackbone registers a named Backbone constructor.
func RegisterBackbone(name string, ctor BackboneConstructor) {
	mu.Lock()
	defer mu.Unlock()
	backbones[name] = ctor
}

// App looks up a previously registered app-adapter constructor by name.
func App(name string) (AppConstructor, bool) {
	mu.Lock()
	defer mu.Unlock()
	ctor, ok := apps[name]
	return ctor, ok
}

// Backbone looks up a previously registered backbone constructor by name.
func Backbone(name string) (BackboneConstructor, bool) {
	mu.Lock()
	defer mu.Unlock()
	ctor, ok := backbones[name]
	return ctor, ok
}

// ErrUnknownApp builds the error reporting that no app adapter is
// registered under name.
func ErrUnknownApp(name string) error {
	return fmt.Errorf("registry: no app adapter registered under name %q", name)
}

// ErrUnknownBackbone builds the error reporting that no backbone is
// registered under name.
func ErrUnknownBackbone(name string) error {
	return fmt.Errorf("registry: no backbone registered under name %q", name)
}
