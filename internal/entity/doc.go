// Package entity is the host side of the switch service.
//
// It defines the OnOffEntity contract that bridges implement, the
// StateChange notification they emit, and the Registry that owns every
// entity and fans state changes out to observers (history, telemetry, the
// WebSocket hub, the retained MQTT mirror).
//
// # Flow
//
//	bridge feedback ──► Notifier ──► Registry.Notify ──► observers
//	API command     ──► OnOffEntity.TurnOn/TurnOff ──► MQTT publish
//
// Observers that perform I/O should be wrapped in a QueuedObserver so they
// never block the entity that is notifying.
package entity
