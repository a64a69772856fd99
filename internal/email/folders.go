package email

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/responses"
	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// lister is the slice of an IMAP session the folder resolver needs.
type lister interface {
	ListMailboxes() ([]*imap.MailboxInfo, error)
	ListExtended() ([]*imap.MailboxInfo, error)
	CreateMailbox(name string) error
}

// specialUseAttrs maps each logical folder to its RFC 6154 special-use
// attribute. Inbox has no attribute; it is always "INBOX".
var specialUseAttrs = map[types.LogicalFolder]string{
	types.FolderSent:    imap.SentAttr,
	types.FolderDrafts:  imap.DraftsAttr,
	types.FolderTrash:   imap.TrashAttr,
	types.FolderArchive: imap.ArchiveAttr,
	types.FolderSpam:    imap.JunkAttr,
}

// folderCandidates lists, per logical folder, the provider paths to try when
// neither special-use discovery nor XLIST identifies the folder. Order
// matters: the first entry is also what gets created on demand.
var folderCandidates = map[types.LogicalFolder][]string{
	types.FolderInbox: {"INBOX"},
	types.FolderSent: {
		"Sent", "Sent Items", "Sent Mail",
		"[Gmail]/Sent Mail", "[Gmail]/Sent",
		"INBOX.Sent", "INBOX/Sent",
	},
	types.FolderDrafts: {
		"Drafts", "Draft",
		"[Gmail]/Drafts",
		"INBOX.Drafts", "INBOX/Drafts",
	},
	types.FolderTrash: {
		"Trash", "Deleted Items", "Deleted",
		"[Gmail]/Trash",
		"INBOX.Trash", "INBOX/Trash",
	},
	types.FolderArchive: {
		"Archive", "Archives",
		"[Gmail]/All Mail",
		"INBOX.Archive", "INBOX/Archive",
	},
	types.FolderSpam: {
		"Junk", "Spam", "Junk E-mail",
		"[Gmail]/Spam",
		"INBOX.spam", "INBOX.Junk", "INBOX/Junk",
	},
}

// hasAttribute reports whether attrs contains the wanted special-use
// attribute. Servers disagree on leading backslashes and letter case, so
// both are tolerated.
func hasAttribute(attrs []string, want string) bool {
	want = strings.TrimPrefix(want, "\\")
	for _, attr := range attrs {
		if strings.EqualFold(strings.TrimPrefix(attr, "\\"), want) {
			return true
		}
	}
	return false
}

// ResolveFolder maps a logical folder to the provider's path for this
// session's account. The result is cached on the session, so a multi-step
// operation resolves each folder at most once.
func (s *ImapSession) ResolveFolder(logical types.LogicalFolder, forWrite bool) (string, error) {
	if path, ok := s.resolved[logical]; ok {
		return path, nil
	}
	path, err := resolveFolder(s, logical, forWrite)
	if err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{
		"logical": string(logical),
		"path":    path,
	}).Debug("Resolved folder")
	s.resolved[logical] = path
	return path, nil
}

// resolveFolder runs the discovery chain: special-use attributes from LIST,
// then the legacy XLIST extension, then static candidates, creating the
// first candidate on demand for write operations.
func resolveFolder(l lister, logical types.LogicalFolder, forWrite bool) (string, error) {
	if logical == types.FolderInbox {
		return "INBOX", nil
	}

	candidates := folderCandidates[logical]
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: unknown logical folder %q", ErrFolderUnavailable, logical)
	}
	wantAttr := specialUseAttrs[logical]

	boxes, listErr := l.ListMailboxes()
	if listErr == nil {
		for _, info := range boxes {
			if hasAttribute(info.Attributes, wantAttr) {
				return info.Name, nil
			}
		}
	}

	// Legacy vendor extension predating RFC 6154. Failure just moves the
	// chain along.
	if ext, err := l.ListExtended(); err == nil {
		for _, info := range ext {
			if hasAttribute(info.Attributes, wantAttr) {
				return info.Name, nil
			}
		}
	}

	// Prefer a candidate the server actually lists.
	if listErr == nil {
		for _, cand := range candidates {
			for _, info := range boxes {
				if info.Name == cand || strings.EqualFold(info.Name, cand) {
					return info.Name, nil
				}
			}
		}
	}

	if forWrite {
		if err := l.CreateMailbox(candidates[0]); err != nil {
			return "", fmt.Errorf("%w: create %q: %v", ErrFolderUnavailable, candidates[0], err)
		}
	}
	// For reads the select itself decides whether the candidate exists.
	return candidates[0], nil
}

// ListMailboxes runs LIST "" "*" and collects the results.
func (s *ImapSession) ListMailboxes() ([]*imap.MailboxInfo, error) {
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", ch)
	}()

	var boxes []*imap.MailboxInfo
	for info := range ch {
		boxes = append(boxes, info)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return boxes, nil
}

// xlistCommand is the Gmail XLIST command, the pre-RFC 6154 way of tagging
// special-use folders.
type xlistCommand struct {
	Ref     string
	Mailbox string
}

func (c *xlistCommand) Command() *imap.Command {
	return &imap.Command{
		Name:      "XLIST",
		Arguments: []interface{}{c.Ref, c.Mailbox},
	}
}

// xlistResponse collects untagged XLIST lines. Each line carries the same
// (attributes, delimiter, name) shape as LIST, with quoted or unquoted
// names, so the stock mailbox parser applies.
type xlistResponse struct {
	mailboxes []*imap.MailboxInfo
}

func (r *xlistResponse) Handle(resp imap.Resp) error {
	name, fields, ok := imap.ParseNamedResp(resp)
	if !ok || name != "XLIST" {
		return responses.ErrUnhandled
	}
	info := &imap.MailboxInfo{}
	if err := info.Parse(fields); err != nil {
		return err
	}
	r.mailboxes = append(r.mailboxes, info)
	return nil
}

// ListExtended runs XLIST "" "*". Servers without the extension answer with
// an error status, which the resolver treats as "move on".
func (s *ImapSession) ListExtended() ([]*imap.MailboxInfo, error) {
	res := &xlistResponse{}
	status, err := s.c.Execute(&xlistCommand{Ref: "", Mailbox: "*"}, res)
	if err != nil {
		return nil, fmt.Errorf("XLIST failed: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("XLIST rejected: %w", err)
	}
	return res.mailboxes, nil
}

// CreateMailbox creates a mailbox on the server.
func (s *ImapSession) CreateMailbox(name string) error {
	return s.c.Create(name)
}
