package observability

// EventEnvelope is the wire shape of service events published to the
// events exchange (websocket lifecycle, delivery errors).
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders assembles the AMQP headers carrying request correlation.
// Empty values are omitted rather than sent blank.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
