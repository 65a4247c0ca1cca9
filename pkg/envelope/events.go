package envelope

import (
	"time"

	"github.com/google/uuid"

	"github.com/stackdump/cim/internal/dagjson"
)

// eventCodecCode is the fixed code for the Event envelope; events are
// a single uniform shape, unlike documents/images/audio/video which
// have one code per concrete format.
const eventCodecCode uint64 = 0x340001

// Event wraps a domain event. EventType and AggregateID identify what
// happened and to what; Data carries the event-specific payload.
// EventID, Timestamp, and CorrelationID are request/delivery metadata
// and are excluded from the canonical bytes so that redelivering the
// same logical event under a new envelope ID yields the same CID.
type Event struct {
	EventType     string
	AggregateID   string
	Data          map[string]any
	EventID       string
	Timestamp     int64
	CorrelationID string
}

var _ Envelope = Event{}

// NewEvent builds an Event with a fresh delivery-metadata EventID and
// CorrelationID, and the current time as Timestamp. Both ids are
// transient: they vary across redeliveries of the same logical event
// and are excluded from CanonicalBytes, so they never affect the CID.
func NewEvent(eventType, aggregateID string, data map[string]any) Event {
	return Event{
		EventType:     eventType,
		AggregateID:   aggregateID,
		Data:          data,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: uuid.NewString(),
	}
}

func (Event) ContentType() ContentType { return TypeEvent }
func (Event) CodecCode() uint64        { return eventCodecCode }

func (e Event) CanonicalBytes() ([]byte, error) {
	projection := map[string]any{
		"event_type":   e.EventType,
		"aggregate_id": e.AggregateID,
		"data":         e.Data,
	}
	return dagjson.Marshal(projection)
}
