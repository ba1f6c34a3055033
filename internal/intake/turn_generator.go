package intake

import "context"

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of the conversation history replayed to the turn
// generator on every request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnContext is the structured ground truth handed to the turn generator
// alongside the message history: what is already known and what is needed
// next. Serialization into a prompt happens at the generator boundary, never
// in the core.
type TurnContext struct {
	ClinicName string
	Fields     PatientFields
	Stage      Stage
}

// TurnGenerator produces the assistant's next reply. Implementations wrap a
// hosted language model; the core treats it as a black box.
type TurnGenerator interface {
	Reply(ctx context.Context, tc TurnContext, history []ChatMessage) (string, error)
}
