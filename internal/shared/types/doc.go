// Package types provides shared data structures for the widget instance daemon.
//
// Core Types:
//   - Status: Instance lifecycle state (created, running, terminated, deleted)
//   - Content: Opaque key-value state reported by a widget
//   - Bundle: Flat string map used on the IPC wire
//   - InstanceInfo: Copy of an instance record for callers
//   - EventKind: Lifecycle codes reported by widget processes
//   - LifecycleEvent, StatusEvent: Events republished to listeners
//
// Example Usage:
//
//	raw, _ := types.Content{"city": "Seoul"}.Encode()
//	content, _ := types.DecodeContent(raw)
package types
