package consts

const (
	MailboxInbox = "Inbox"
	MailboxSent  = "Sent"
)

var DefaultMailboxes = []string{
	MailboxInbox,
	MailboxSent,
	"Drafts",
	"Trash",
}
