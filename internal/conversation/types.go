package conversation

// SessionType tags a conversation with the interaction mode that created
// it. A command implying a different type hard-resets the history.
type SessionType string

const (
	TypeGenerate  SessionType = "generate"
	TypeEdit      SessionType = "edit"
	TypeReference SessionType = "reference"
	TypeMerge     SessionType = "merge"
	TypeAnalysis  SessionType = "analysis"
)

// Wire roles for history messages.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one fragment of a message: plain text, inline image bytes, or a
// reference to an image persisted on disk.
type Part struct {
	Text      string
	MimeType  string
	Inline    []byte
	ImagePath string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func InlinePart(mimeType string, data []byte) Part {
	return Part{MimeType: mimeType, Inline: data}
}

func ImageRefPart(path string) Part {
	return Part{ImagePath: path}
}

// IsText reports whether the part carries text rather than image content.
func (p Part) IsText() bool {
	return p.Inline == nil && p.ImagePath == ""
}

type Message struct {
	Role  string
	Parts []Part
}

// Conversation is the per-session message history. ID survives an
// Edit-flow reset so a provider-side conversation handle can be carried
// across the type change; the history never does.
type Conversation struct {
	ID       string
	Type     SessionType
	Messages []Message
}
