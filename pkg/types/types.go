package types

import "time"

// LogicalFolder identifies a standard mailbox role independently of whatever
// path the provider actually uses for it.
type LogicalFolder string

const (
	FolderInbox   LogicalFolder = "Inbox"
	FolderSent    LogicalFolder = "Sent"
	FolderDrafts  LogicalFolder = "Drafts"
	FolderTrash   LogicalFolder = "Trash"
	FolderArchive LogicalFolder = "Archive"
	FolderSpam    LogicalFolder = "Spam"
)

// Valid reports whether f is one of the known logical folders.
func (f LogicalFolder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDrafts, FolderTrash, FolderArchive, FolderSpam:
		return true
	}
	return false
}

// MessageSummary is one row of a paginated folder listing. It is recomputed
// on every listing call and never cached.
type MessageSummary struct {
	ID          int64         `json:"id"`
	Folder      LogicalFolder `json:"folder"`
	Subject     string        `json:"subject"`
	FromAddress string        `json:"from_address"`
	ToAddresses []string      `json:"to_addresses"`
	IsRead      bool          `json:"is_read"`
}

// MessageDetail is a fully decoded message.
type MessageDetail struct {
	ID           int64         `json:"id"`
	Folder       LogicalFolder `json:"folder"`
	Subject      string        `json:"subject"`
	Body         string        `json:"body"`
	FromAddress  string        `json:"from_address"`
	ToAddresses  []string      `json:"to_addresses"`
	CcAddresses  []string      `json:"cc_addresses"`
	BccAddresses []string      `json:"bcc_addresses"`
	IsRead       bool          `json:"is_read"`
	Attachments  []string      `json:"attachments"`
}

// MessageList is a page of a folder listing.
type MessageList struct {
	Total int              `json:"total"`
	Items []MessageSummary `json:"items"`
}

// Attachment crosses the engine boundary as a filename, a declared content
// type and raw bytes. Wire encoding is the caller's concern.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// DraftPayload is a message composed by the caller, used for both saving
// drafts and sending.
type DraftPayload struct {
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc"`
	Bcc         []string     `json:"bcc"`
	Attachments []Attachment `json:"attachments"`
	DraftID     int64        `json:"draft_id,omitempty"`
}

// Record is the durable store's representation of a message the system
// created itself (a draft or a sent copy).
type Record struct {
	ID           int64         `json:"id"`
	Account      string        `json:"account"`
	Folder       LogicalFolder `json:"folder"`
	Subject      string        `json:"subject"`
	Body         string        `json:"body"`
	FromAddress  string        `json:"from_address"`
	ToAddresses  []string      `json:"to_addresses"`
	CcAddresses  []string      `json:"cc_addresses"`
	BccAddresses []string      `json:"bcc_addresses"`
	IsRead       bool          `json:"is_read"`
	Attachments  []Attachment  `json:"attachments"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// PollResult reports what a single poll pass found.
type PollResult struct {
	Folder   LogicalFolder    `json:"folder"`
	Total    int              `json:"total"`
	Unseen   int              `json:"unseen"`
	Recent   int              `json:"recent"`
	Messages []MessageSummary `json:"messages"`
}

// IdleResult reports the outcome of one bounded IDLE wait. Supported is
// false when the server does not advertise the IDLE capability; that is a
// normal result, not an error.
type IdleResult struct {
	Folder    LogicalFolder `json:"folder"`
	Supported bool          `json:"supported"`
	NewMail   bool          `json:"new_mail"`
	WaitedFor time.Duration `json:"waited_for"`
	Total     int           `json:"total"`
	Unseen    int           `json:"unseen"`
}
