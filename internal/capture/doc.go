// Package capture abstracts the host audio capture boundary behind a
// provider/node interface. Providers construct capture nodes from a session
// config, and a chain of providers falls back in order when a backend is
// unavailable on the current host.
package capture
