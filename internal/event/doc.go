// Package event defines the envelope that flows through the Synapse
// coordination core and the registry that maps envelope kinds to handlers.
//
// Modules such as data sync, neural ingestion, the assistant and UI surfaces
// never reference each other directly. They emit envelopes and subscribe to
// kinds; the core moves the envelopes between them.
//
// # Main Types
//
//   - [Envelope]: Immutable event record (kind, subject, priority, correlation ID, payload)
//   - [Payload]: Sealed sum type with one struct per known [Kind], plus [Custom]
//   - [Registry]: Ordered kind -> handler lists with disposable subscriptions
//   - [Handler]: func(ctx, Envelope) error
//
// # Payloads
//
// Handlers switch on the concrete payload type:
//
//	switch p := env.Payload.(type) {
//	case event.DataUpdated:
//	    // ...
//	case event.Custom:
//	    // kinds without a dedicated type
//	}
//
// # Subscriptions
//
//	reg := event.NewRegistry()
//	sub := reg.Subscribe(event.KindInsightGenerated, func(ctx context.Context, env event.Envelope) error {
//	    return nil
//	})
//	defer sub.Unsubscribe()
//
//	// Glob patterns match several kinds.
//	reg.SubscribePattern("neural_*", handler)
//
// Registering the same handler twice invokes it twice. Exact-kind handlers
// run before pattern handlers, each group in registration order.
//
// # Handler Context
//
// The dispatcher hands every handler a context produced by [NewContext].
// [FromContext] returns the envelope being handled, which the core uses to
// propagate correlation IDs to follow-up emits, and [DeliveryFromContext]
// tells a handler whether it is running from the immediate path or a drain.
//
// # Thread Safety
//
// [Registry] is safe for concurrent use. [Envelope] is a value type; copies
// may be shared freely.
package event
