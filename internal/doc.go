// Package internal contains the core implementation packages for srcdoc.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - types: File Set, build options and the rendered document
//   - fingerprint: canonical CBOR encoding and keyed BLAKE3 fingerprints
//   - codec: compressed, checksummed artifact frames
//   - cache: the byte-bounded artifact cache shared by build sessions
//   - preset: the preset registry plus the html and react presets
//   - deps: bare import resolution to pinned CDN URLs
//   - build: single-use build sessions and build metrics
//   - assemble: turns a finished session into a fingerprinted document
//   - preview: the coordinator that keeps one live session per update
//   - project: loads a project directory into a File Set
//   - watcher: debounced file system notifications
//   - server: the preview HTTP server and its WebSocket hub
//   - config, errors, logging, version: the ambient stack
//
// # Data Flow
//
// The watcher notifies the server, the server loads the project and hands
// the File Set to the coordinator, and the coordinator runs a build session
// whose output the assembler turns into the document served to the
// sandboxed iframe. Each update cancels the previous session.
//
// For detailed documentation, see the individual package documentation.
package internal
