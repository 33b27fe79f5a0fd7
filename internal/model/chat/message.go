package chat

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one entry of a conversation transcript.
// Timestamp is the HH:MM display string captured at creation.
type Message struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// IsBot reports whether the message was produced by the assistant.
func (m Message) IsBot() bool {
	return m.Sender == SenderBot
}
