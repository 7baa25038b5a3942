// Package events distributes service lifecycle events between pactown
// components without coupling them to each other.
//
// # Architecture
//
// A single Broker fans events out to any number of subscribers:
//
//	┌───────────┐  Publish   ┌────────────┐  broadcast  ┌─────────────┐
//	│  sandbox   ├──────────▶│   Broker   ├────────────▶│ subscribers │
//	│ supervisor │           │ (buffered) │             │  (buffered) │
//	└───────────┘            └────────────┘             └─────────────┘
//
// The sandbox supervisor publishes exit events as processes die; the
// orchestrator subscribes to decide whether a death was a crash worth
// restarting or an ordered stop. Slow subscribers never stall the
// publisher: when a subscriber's buffer is full the event is dropped
// for that subscriber only.
//
// # Event Types
//
//   - service.starting / service.healthy / service.unhealthy
//   - service.exited (unexpected death, carries the exit code)
//   - service.stopped (ordered shutdown)
//   - service.restarted
//   - policy.denied
//
// Every published event gets a unique ID and a timestamp if the
// producer did not set them.
//
// # Usage
//
//	broker := events.NewBroker()
//	broker.Start()
//	defer broker.Stop()
//
//	sub := broker.Subscribe()
//	defer broker.Unsubscribe(sub)
//
//	for event := range sub {
//		if event.Type == events.EventServiceExited {
//			// maybe restart event.Service
//		}
//	}
//
// # See Also
//
//   - pkg/sandbox: publishes process lifecycle events
//   - pkg/orchestrator: consumes exit events for auto-restart
package events
