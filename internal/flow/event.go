package flow

// EventKind distinguishes the three inbound event shapes.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventAction:
		return "action"
	default:
		return "text"
	}
}

const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// Event is one inbound transport event. Text holds the message body, the
// command name without its slash, or the button action id.
type Event struct {
	UserID   int64
	Username string
	Kind     EventKind
	Text     string
}

func TextEvent(userID int64, text string) Event {
	return Event{UserID: userID, Kind: EventText, Text: text}
}

func CommandEvent(userID int64, username, name string) Event {
	return Event{UserID: userID, Username: username, Kind: EventCommand, Text: name}
}

func ActionEvent(userID int64, action string) Event {
	return Event{UserID: userID, Kind: EventAction, Text: action}
}

// Button is an inline control; Action comes back as an EventAction.
type Button struct {
	Label  string
	Action string
}

// Message is one outbound chat message with optional button rows.
type Message struct {
	Text    string
	Buttons [][]Button
}
