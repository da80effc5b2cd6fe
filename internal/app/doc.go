// Package app contains the core application logic. It wires the registry,
// plugin discovery, the dispatcher and the presentation layer together and
// runs one-shot calculations, the interactive loop and the worker side of
// isolated execution, decoupled from any specific entrypoint like a CLI.
package app
