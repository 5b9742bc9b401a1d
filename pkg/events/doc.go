/*
Package events provides an in-memory event broker for radgate's pub/sub
messaging.

The broker broadcasts server events (request accepted, duplicate detected,
reply sent or resent, discard, handler crash, node membership changes) to
interested subscribers over buffered channels. Publishing never blocks:
a subscriber whose buffer is full simply misses the event, which keeps the
packet path free of backpressure from slow observers.

The server publishes to the broker; nothing inside radgate subscribes to
it (trace lines for flagged NASes are written by pkg/reqlog directly), so
subscribers are operational tooling watching a live server.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventReplySent, Message: "id=7"})
*/
package events
