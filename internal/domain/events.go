package domain

// StreamMessage is what live subscribers receive for every committed order mutation.
type StreamMessage struct {
	Action  string  `json:"action"`
	Payload []Order `json:"payload"`
}

const ActionStream = "stream"

func NewStreamMessage(orders ...Order) StreamMessage {
	return StreamMessage{Action: ActionStream, Payload: orders}
}

// IntakeMessage is the envelope carried by the intake queue.
type IntakeMessage struct {
	Order        Order `json:"order"`
	ReceiveCount int   `json:"-"`
}
