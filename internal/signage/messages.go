package signage

import "encoding/json"

const (
	ActionPlay = "play"
	ActionStop = "stop"
)

// PlayMessage tells a display to render a template body.
type PlayMessage struct {
	Action       string `json:"action"`
	Timestamp    int64  `json:"timestamp"`
	TemplateName string `json:"templateName"`
	Template     string `json:"template"`
}

// StopMessage tells a display to clear its screen.
type StopMessage struct {
	Action string `json:"action"`
}

// ControllerUpdate is the full topology snapshot pushed to controllers.
type ControllerUpdate struct {
	Clients        []string          `json:"clients"`
	Templates      []string          `json:"templates"`
	ClientTemplate map[string]string `json:"clientTemplate"`
}

func encode(v any) []byte {
	// All message types are plain structs of strings and ints.
	b, _ := json.Marshal(v)
	return b
}
