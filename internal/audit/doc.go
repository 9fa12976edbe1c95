// Package audit relays security events from the engine to sinks.
//
// [Dispatcher] queues events and delivers them from one goroutine, either
// dropping on a full queue or blocking until the caller's context ends.
// Metadata keys that name secret material are removed before queueing, and
// a panicking sink costs only the event it was handed.
//
// Sinks: [ChannelSink], [JSONWriterSink], [LoggerSink], [MultiSink],
// [SinkFunc] and [NoOpSink].
package audit
