package model

import "fmt"

const (
	CustomersTable = "ChatCustomers"
	SessionsTable  = "ChatSessions"
	MessagesTable  = "ChatMessages"
)

func MessagePK(sessionID, messageID string) string {
	return fmt.Sprintf("%s#%s", sessionID, messageID)
}
