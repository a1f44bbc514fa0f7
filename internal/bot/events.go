package bot

import "strings"

type Kind int

const (
	KindCommand Kind = iota
	KindText
	KindButton
)

// Event is one inbound update from the chat front end.
type Event struct {
	Kind     Kind
	PersonID int64
	Username string
	// Name is the command without the leading slash.
	Name  string
	Args  string
	Text  string
	Token string
}

func Command(personID int64, username, name, args string) Event {
	return Event{
		Kind:     KindCommand,
		PersonID: personID,
		Username: username,
		Name:     strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/")),
		Args:     strings.TrimSpace(args),
	}
}

func TextReply(personID int64, username, text string) Event {
	return Event{Kind: KindText, PersonID: personID, Username: username, Text: text}
}

func ButtonPress(personID int64, username, token string) Event {
	return Event{Kind: KindButton, PersonID: personID, Username: username, Token: strings.TrimSpace(token)}
}

// ParseInput turns a raw line typed into a console into an event: "/name args"
// is a command, anything else a text reply.
func ParseInput(personID int64, username, line string) Event {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return TextReply(personID, username, line)
	}
	name, args, _ := strings.Cut(line, " ")
	return Command(personID, username, name, args)
}

// Button is one inline button. Token is sent back in a ButtonPress.
type Button struct {
	Text  string
	Token string
}

// Message is one outbound message. Notice is a short acknowledgement shown
// for button presses.
type Message struct {
	Text    string
	Buttons [][]Button
	Notice  string
}

// Tokens returns every button token of the message in display order.
func (m Message) Tokens() []string {
	var out []string
	for _, row := range m.Buttons {
		for _, b := range row {
			out = append(out, b.Token)
		}
	}
	return out
}
