// Package router fans inbound stream frames out to subscribed handlers.
//
// A Registry records interest by event name and hands out stable handler
// ids. A Dispatcher decodes each frame's first element into a Payload and
// invokes every subscription whose event matches the payload's meta.action,
// or its type for the reserved broadcast types. Connection changes reach
// subscribers of EventConnected and EventDisconnected through the same path.
//
// Handlers run on the dispatching goroutine, or on a timer when the
// subscription is debounced. Queue and QueueHandler let a consumer drain
// payloads on its own goroutine instead.
package router
