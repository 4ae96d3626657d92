package chat

// Kind distinguishes server notices from user-authored messages.
type Kind string

const (
	KindSystem Kind = "SYSTEM"
	KindUser   Kind = "USER"
)

// Message is one entry of a room's log. Messages are never modified after
// they are appended.
type Message struct {
	Author  User   `json:"author"`
	Content string `json:"content"`
	Kind    Kind   `json:"type"`
}

func joinNotice(user User) Message {
	return Message{Author: SystemUser, Content: user.Username + " connect to room!", Kind: KindSystem}
}
