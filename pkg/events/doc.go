/*
Package events provides an in-memory event broker for provisioning events.

The reconciler publishes an Event whenever a subdomain is defined, fails to
define, is undefined, or has its certificate renewed. Subscribers receive
every event on their own buffered channel:

	Publish ──► event channel (buffer: 100)
	                 │
	                 ▼
	          broadcast loop
	          │      │      │
	          ▼      ▼      ▼
	     subscriber channels (buffer: 50 each)

Publish never blocks the caller. A subscriber whose buffer is full misses
the event. A nil *Broker is a valid Publisher that drops everything, so
components can publish without checking whether anyone listens.

# Event Types

	subdomain.defined          define finished, subdomain is fully active
	subdomain.define_failed    a define step failed and was rolled back
	subdomain.undefined        undefine finished (possibly with warnings)
	certificate.renewed        a certificate inside the window was renewed
	certificate.renew_failed   renewal was attempted and failed

Metadata always carries "label" and "domain"; failures add "step" or "error".

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for e := range sub {
			log.Logger.Info().Str("event", string(e.Type)).Msg(e.Message)
		}
	}()
*/
package events
