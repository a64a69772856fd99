package email

import (
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// mailboxConn is the slice of an IMAP session the read paths need. It is
// satisfied by *ImapSession and by test fakes.
type mailboxConn interface {
	SelectReadOnly(name string) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
}

// SelectReadOnly selects a folder without marking anything seen.
func (s *ImapSession) SelectReadOnly(name string) (*imap.MailboxStatus, error) {
	return s.c.Select(name, true)
}

// Search runs SEARCH with the given criteria in the selected folder.
func (s *ImapSession) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	return s.c.Search(criteria)
}

// Fetch runs FETCH for the sequence set in the selected folder.
func (s *ImapSession) Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	return s.c.Fetch(seqset, items, ch)
}

// headerSection is the BODY.PEEK[HEADER] fetch target.
func headerSection() *imap.BodySectionName {
	return &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
}

// fullSection is the BODY.PEEK[] fetch target.
func fullSection() *imap.BodySectionName {
	return &imap.BodySectionName{Peek: true}
}

// fetchOne fetches one message's section plus flags and returns the raw
// section bytes and the flag set.
func fetchOne(conn mailboxConn, id uint32, section *imap.BodySectionName) ([]byte, []string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, items, ch)
	}()

	var raw []byte
	var flags []string
	for msg := range ch {
		flags = append(flags, msg.Flags...)
		if literal := msg.GetBody(section); literal != nil {
			b, err := io.ReadAll(literal)
			if err == nil {
				raw = b
			}
		}
	}
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message %d: %w", id, err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return raw, flags, nil
}

// ListPage lists one page of a folder against the live server, newest
// first. A failed select or search yields an empty listing rather than an
// error; a failed fetch or decode of one identifier skips that identifier
// and keeps the page.
func (s *ImapSession) ListPage(path string, folder types.LogicalFolder, page, size int) *types.MessageList {
	return listPage(s, s.logger, path, folder, page, size)
}

func listPage(conn mailboxConn, logger *logrus.Entry, path string, folder types.LogicalFolder, page, size int) *types.MessageList {
	empty := &types.MessageList{Total: 0, Items: []types.MessageSummary{}}
	if page < 1 || size < 1 {
		return empty
	}

	if _, err := conn.SelectReadOnly(path); err != nil {
		logger.WithError(err).WithField("path", path).Debug("Select failed")
		return empty
	}

	ids, err := conn.Search(&imap.SearchCriteria{})
	if err != nil {
		logger.WithError(err).WithField("path", path).Debug("Search failed")
		return empty
	}
	total := len(ids)
	if total == 0 {
		return empty
	}

	// Newest first.
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	start := (page - 1) * size
	if start >= total {
		return &types.MessageList{Total: total, Items: []types.MessageSummary{}}
	}
	end := start + size
	if end > total {
		end = total
	}

	items := make([]types.MessageSummary, 0, end-start)
	section := headerSection()
	for _, id := range ids[start:end] {
		raw, flags, err := fetchOne(conn, id, section)
		if err != nil {
			logger.WithError(err).WithField("id", id).Warn("Skipping message in listing")
			continue
		}
		items = append(items, DecodeSummary(logger, raw, flags, int64(id), folder))
	}

	return &types.MessageList{Total: total, Items: items}
}
