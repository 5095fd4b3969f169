package models

// GroupsSnapshot is pushed over the user-groups websocket on every change.
type GroupsSnapshot struct {
	Type   string  `json:"type"`
	Groups []Group `json:"groups"`
}

// MessageView is a message as shown to one reader. Content of hidden messages
// is withheld from everyone but the sender.
type MessageView struct {
	Message
	Revealed bool `json:"revealed"`
}

// MessagesSnapshot is pushed over the group-messages websocket on every change.
type MessagesSnapshot struct {
	Type     string        `json:"type"`
	GroupID  string        `json:"group_id"`
	Messages []MessageView `json:"messages"`
}
