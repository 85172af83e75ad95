// Package ipc connects the instance tracker to the platform.
//
// Two collaborators are consumed:
//   - Launcher: synchronous "launch this app with this command bundle"
//     request answered with the pid of the target process.
//   - Bus: asynchronous pub/sub where widget processes report lifecycle
//     envelopes to a named viewer endpoint.
//
// Envelopes are flat string bundles on the wire. Decode turns them into
// typed events (Created, Destroyed, Terminated, ...) so consumers switch on
// Go types instead of looking keys up.
//
// Implementations:
//   - DBusLauncher, DBusBus: D-Bus transport (method call + signals)
//   - Loopback: in-process transport for tests and single-host setups
package ipc
