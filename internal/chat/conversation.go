package chat

import (
	"context"
	"strings"
	"sync"

	"sdqueue/internal/models"
)

// SystemPrompt tells the model to answer in the SDPROMPT/Final/ModelType layout that ParseReply reads.
const SystemPrompt = `You help the user write prompts for a Stable Diffusion image model. You are friendly and pay close attention to artistic detail.
The user describes an image and may send follow-up feedback to refine it. Keep prompts descriptive but concise: key words and phrases separated only by commas, no linking words.
Pick the model type that fits the main theme of the prompt: Standard, Anime or Realism.
Set Final to No until the user says they are happy with the prompt, then set it to Yes.
Every reply must start with these three lines, in this order:

SDPROMPT: <the prompt you suggest>
Final: Yes / No
ModelType: Standard / Anime / Realism

Put any other comments or questions after those lines.

Example:

SDPROMPT: majestic lioness, tawny golden fur, savannah at dusk, warm sunlight, long shadows
Final: No
ModelType: Standard

Want me to change the lighting or the setting?`

// Conversation keeps the message history of one chat session.
type Conversation struct {
	backend Backend

	mu      sync.Mutex
	history []Message
}

// NewConversation starts a session seeded with system as the first message.
func NewConversation(backend Backend, system string) *Conversation {
	c := &Conversation{backend: backend}
	if strings.TrimSpace(system) != "" {
		c.history = append(c.history, Message{Role: RoleSystem, Content: system})
	}
	return c
}

// Send records the user turn, asks the backend, and records the reply. A failed call leaves the
// history as it was before Send.
func (c *Conversation) Send(ctx context.Context, text string) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, Message{Role: RoleUser, Content: text})
	msg, err := c.backend.Chat(ctx, append([]Message(nil), c.history...))
	if err != nil {
		c.history = c.history[:len(c.history)-1]
		return Reply{}, err
	}
	msg.Role = RoleAssistant
	c.history = append(c.history, msg)
	return ParseReply(msg.Content), nil
}

// History returns a copy of the messages exchanged so far.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

// Reply is the structured part of an assistant message.
type Reply struct {
	Text      string
	Prompt    string
	Final     string
	ModelType string
}

// ParseReply extracts the SDPROMPT, Final and ModelType lines. Later lines win.
func ParseReply(text string) Reply {
	r := Reply{Text: text}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "SDPROMPT:"):
			r.Prompt = strings.TrimSpace(strings.TrimPrefix(line, "SDPROMPT:"))
		case strings.HasPrefix(line, "Final:"):
			r.Final = strings.TrimSpace(strings.TrimPrefix(line, "Final:"))
		case strings.HasPrefix(line, "ModelType:"):
			r.ModelType = strings.TrimSpace(strings.TrimPrefix(line, "ModelType:"))
		}
	}
	return r
}

// Finalized reports whether the user accepted the prompt and it is complete enough to enqueue.
func (r Reply) Finalized() bool {
	return strings.HasPrefix(r.Final, "Yes") && r.Prompt != "" && r.ModelType != ""
}

// Model returns the normalized model type of the reply.
func (r Reply) Model() models.ModelType {
	return models.ParseModelType(r.ModelType)
}
