package domain

// Notification is handed to the external push transport.
type Notification struct {
	RecipientID UserID
	Title       string
	Body        string
	Data        map[string]string
}
