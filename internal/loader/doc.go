// Package loader imports and exports repository bundles.
//
// A bundle is a JSON or YAML file holding an optional schema update and a
// list of entities (see codec.Bundle). The same format serves as the
// schema file applied on startup and re-applied by the watcher when it
// changes.
package loader
