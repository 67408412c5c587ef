// Package audit defines the structured audit event model and the sinks that
// receive it. Dispatching (buffering, backpressure) lives with the engine.
package audit
