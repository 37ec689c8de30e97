// Package natsrelay is an OPTIONAL lifespan-adjacent side channel: when
// configured, the Lifespan Coordinator publishes its phase transitions to a
// NATS subject for out-of-process observability. It is strictly additive —
// the core functions identically if NATS is unreachable or unconfigured.
//
// Adapted from internal/events/publisher.go's NewPublisher graceful
// degradation (connect-or-disable-with-a-warning) and
// internal/events/subscriber.go's Close() pattern, generalized from
// "session/app/node events" to "lifespan phase transitions."
package natsrelay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamgate/streamgate/internal/logging"
)

// subjectPrefix matches SPEC_FULL.md's "streamgate.lifespan.*" naming.
const subjectPrefix = "streamgate.lifespan."

// Relay publishes lifespan phase transitions to NATS. A Relay built with no
// URL (or one that fails to connect) is disabled and silently no-ops.
type Relay struct {
	conn    *nats.Conn
	enabled bool
}

// New connects to url (if non-empty) and returns a Relay. Connection
// failure does not return an error: the relay degrades to disabled, exactly
// as the teacher's Publisher does when NATS is unavailable.
func New(url, user, password string) *Relay {
	log := logging.Lifespan()
	if url == "" {
		return &Relay{enabled: false}
	}

	opts := []nats.Option{
		nats.Name("streamgate-lifespan-relay"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS lifespan relay disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS lifespan relay reconnected")
		}),
	}
	if user != "" {
		opts = append(opts, nats.UserInfo(user, password))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("NATS lifespan relay disabled: connection failed")
		return &Relay{enabled: false}
	}
	log.Info().Str("url", conn.ConnectedUrl()).Msg("NATS lifespan relay connected")
	return &Relay{conn: conn, enabled: true}
}

// ObservePhase implements lifespan.PhaseObserver.
func (r *Relay) ObservePhase(phase string) {
	if !r.enabled {
		return
	}
	subject := fmt.Sprintf("%s%s", subjectPrefix, phase)
	if err := r.conn.Publish(subject, []byte(phase)); err != nil {
		logging.Lifespan().Warn().Err(err).Str("subject", subject).Msg("failed to publish lifespan phase")
	}
}

// Close drains and closes the underlying NATS connection, if any.
func (r *Relay) Close() {
	if r.conn != nil {
		r.conn.Drain()
		r.conn.Close()
	}
}

// IsEnabled reports whether the relay is actually publishing.
func (r *Relay) IsEnabled() bool { return r.enabled }
