// Package plugin discovers operation plugins from a directory and registers
// them in an operation registry.
//
// A plugin is an HCL manifest placed directly inside the plugin directory.
// Each manifest declares one or more operations and binds every one of them to
// a handler kind compiled into the binary:
//
//	operation "double" {
//	  handler     = "scale"
//	  description = "Multiply by two"
//	  params      = { factor = 2 }
//	}
//
// Loading a manifest produces registration callbacks rather than mutating the
// registry directly, so a file that fails half way never leaves partial
// entries behind. Files whose base name starts with "_" are internal and are
// never loaded.
package plugin
