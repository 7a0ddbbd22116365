package outbox

// Event types emitted by the scheduling core. The notification collaborator
// subscribes to these topics and composes the outbound messages; delivery is
// entirely its problem. Topic name equals event type.
const (
	EventAppointmentRequested = "scheduling.appointment.requested.v1"
	EventAppointmentConfirmed = "scheduling.appointment.confirmed.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
