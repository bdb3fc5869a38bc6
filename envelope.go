package anyclass

import (
	"encoding/json"
)

// Envelope is the uniform response wrapper every operation returns. On the
// wire it flattens: the payload keys sit next to "success" and the optional
// "message" and "id" rather than under a nested key.
type Envelope struct {
	// ID echoes a request id when a transport carries one; nil otherwise.
	ID      any
	Success bool
	Message string
	Payload map[string]any
}

// OK wraps an operation payload into a success envelope.
func OK(payload map[string]any) Envelope {
	return Envelope{Success: true, Payload: payload}
}

// Fail wraps an error into a failure envelope carrying its message.
func Fail(err error) Envelope {
	return Envelope{Success: false, Message: err.Error()}
}

// reserved envelope keys. Payload entries never override success or id; a
// payload message fills the message slot only while the envelope's own
// message is empty, which is how informational success messages travel.
const (
	envKeyID      = "id"
	envKeySuccess = "success"
	envKeyMessage = "message"
)

func (e Envelope) flatten() map[string]any {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		switch k {
		case envKeyID, envKeySuccess, envKeyMessage:
			continue
		}
		out[k] = v
	}
	out[envKeySuccess] = e.Success
	if e.Message != "" {
		out[envKeyMessage] = e.Message
	} else if msg, ok := e.Payload[envKeyMessage].(string); ok {
		out[envKeyMessage] = msg
	}
	if e.ID != nil {
		out[envKeyID] = e.ID
	}
	return out
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.flatten())
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = envelopeFromMap(raw)
	return nil
}

func envelopeFromMap(raw map[string]any) Envelope {
	var e Envelope
	if v, ok := raw[envKeySuccess]; ok {
		if b, ok := v.(bool); ok {
			e.Success = b
		}
		delete(raw, envKeySuccess)
	}
	if v, ok := raw[envKeyMessage]; ok {
		if s, ok := v.(string); ok {
			e.Message = s
		}
		delete(raw, envKeyMessage)
	}
	if v, ok := raw[envKeyID]; ok {
		e.ID = v
		delete(raw, envKeyID)
	}
	if len(raw) > 0 {
		e.Payload = raw
	}
	return e
}
