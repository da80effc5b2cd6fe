// Package registry provides the central "glue" for the operation system.
//
// The Registry maps the operation names users type (e.g., "add", "cube") to
// descriptors that know how to build a handler for a pair of operands. It also
// keeps a catalog of handler kinds: compiled-in handler families that plugin
// manifests can bind new operation names to without shipping any Go code.
//
// A Registry is an explicit value created once at startup and handed to
// plugin discovery and to the dispatcher. Registration is last-write-wins;
// there is no removal.
package registry
