package email

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// pollConn is the slice of an IMAP session the polling detector needs.
type pollConn interface {
	mailboxConn
	Noop() error
	Check() error
	CloseFolder() error
	ProviderNudge(p ProviderProfile) error
}

// Noop sends a keepalive, prompting the server to flush pending updates.
func (s *ImapSession) Noop() error {
	return s.c.Noop()
}

// Check requests a mailbox checkpoint.
func (s *ImapSession) Check() error {
	return s.c.Check()
}

// CloseFolder releases the selected folder so a re-select sees fresh state.
func (s *ImapSession) CloseFolder() error {
	return s.c.Close()
}

// rawSearchCommand issues a SEARCH with verbatim arguments, used for vendor
// search extensions the criteria type cannot express.
type rawSearchCommand struct {
	args []interface{}
}

func (c *rawSearchCommand) Command() *imap.Command {
	return &imap.Command{Name: "SEARCH", Arguments: c.args}
}

// discardResponse drops every untagged response; only the command status
// matters.
type discardResponse struct{}

func (discardResponse) Handle(resp imap.Resp) error {
	return responses.ErrUnhandled
}

// ProviderNudge pokes providers that under-report changes. Gmail-style
// servers get a vendor search; push-less servers get a brief pause and a
// second keepalive.
func (s *ImapSession) ProviderNudge(p ProviderProfile) error {
	switch {
	case p.GmailExtensions:
		status, err := s.c.Execute(&rawSearchCommand{
			args: []interface{}{imap.RawString("X-GM-RAW"), "has:nouserlabels"},
		}, discardResponse{})
		if err != nil {
			return err
		}
		return status.Err()
	case p.Sluggish:
		time.Sleep(200 * time.Millisecond)
		return s.c.Noop()
	}
	return nil
}

// PollFolder discovers new and changed messages by brute-force refresh:
// keepalive, checkpoint, release-and-reselect, an optional provider nudge,
// then a battery of searches. A date-window search is unioned into the
// recent set because some providers under-report the \Recent flag.
func (s *ImapSession) PollFolder(path string, folder types.LogicalFolder, sinceHours, fetchLimit int) (*types.PollResult, error) {
	return pollFolder(s, s.logger, s.Profile(), path, folder, sinceHours, fetchLimit)
}

func pollFolder(conn pollConn, logger *logrus.Entry, profile ProviderProfile, path string, folder types.LogicalFolder, sinceHours, fetchLimit int) (*types.PollResult, error) {
	status, err := conn.SelectReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", path, err)
	}

	if err := conn.Noop(); err != nil {
		logger.WithError(err).Debug("NOOP failed")
	}
	if err := conn.Check(); err != nil {
		logger.WithError(err).Debug("CHECK failed")
	}
	if err := conn.CloseFolder(); err != nil {
		logger.WithError(err).Debug("Folder release failed")
	}
	if fresh, err := conn.SelectReadOnly(path); err != nil {
		logger.WithError(err).Debug("Re-select failed")
		// Keep the stale selection if one more attempt fails too.
		if _, err := conn.SelectReadOnly(path); err != nil {
			return nil, fmt.Errorf("failed to re-select %s: %w", path, err)
		}
	} else {
		status = fresh
	}
	if err := conn.ProviderNudge(profile); err != nil {
		logger.WithError(err).Debug("Provider nudge failed")
	}

	search := func(criteria *imap.SearchCriteria, label string) []uint32 {
		ids, err := conn.Search(criteria)
		if err != nil {
			logger.WithError(err).WithField("search", label).Debug("Search failed")
			return nil
		}
		return ids
	}

	all := search(&imap.SearchCriteria{}, "ALL")
	unseen := search(&imap.SearchCriteria{WithoutFlags: []string{imap.SeenFlag}}, "UNSEEN")
	recent := search(&imap.SearchCriteria{WithFlags: []string{imap.RecentFlag}}, "RECENT")
	if sinceHours > 0 {
		since := search(&imap.SearchCriteria{
			Since: time.Now().Add(-time.Duration(sinceHours) * time.Hour),
		}, "SINCE")
		recent = unionIDs(recent, since)
	}

	total := len(all)
	if total == 0 {
		total = int(status.Messages)
	}

	interesting := unionIDs(recent, unseen)
	sort.Slice(interesting, func(i, j int) bool { return interesting[i] > interesting[j] })
	if fetchLimit > 0 && len(interesting) > fetchLimit {
		interesting = interesting[:fetchLimit]
	}

	messages := make([]types.MessageSummary, 0, len(interesting))
	section := headerSection()
	for _, id := range interesting {
		raw, flags, err := fetchOne(conn, id, section)
		if err != nil {
			logger.WithError(err).WithField("id", id).Debug("Skipping message in poll")
			continue
		}
		messages = append(messages, DecodeSummary(logger, raw, flags, int64(id), folder))
	}

	return &types.PollResult{
		Folder:   folder,
		Total:    total,
		Unseen:   len(unseen),
		Recent:   len(recent),
		Messages: messages,
	}, nil
}

// unionIDs merges two identifier sets, preserving uniqueness.
func unionIDs(a, b []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(a)+len(b))
	var out []uint32
	for _, set := range [][]uint32{a, b} {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// drainIdle keeps consuming pending updates until the idle goroutine exits.
// The client delivers updates with a blocking send, so a burst of pushes
// arriving during teardown would otherwise stall the reader and keep the
// wait from returning.
func drainIdle(updates <-chan client.Update, done <-chan error) error {
	for {
		select {
		case <-updates:
		case err := <-done:
			return err
		}
	}
}

// IdleWait blocks on server pushes for up to timeout. Servers without the
// IDLE capability yield Supported=false immediately; that is a normal
// result, not an error. The wait ends early the moment a push reports a
// higher message count, and always finishes with the unsubscribe terminator
// and a final count check.
func (s *ImapSession) IdleWait(path string, folder types.LogicalFolder, timeout time.Duration) (*types.IdleResult, error) {
	start := time.Now()
	if !s.Supports("IDLE") {
		s.logger.Debug("Server does not advertise IDLE")
		return &types.IdleResult{Folder: folder, Supported: false, WaitedFor: time.Since(start)}, nil
	}

	status, err := s.SelectReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", path, err)
	}
	baseline := status.Messages

	updates := make(chan client.Update, 8)
	s.c.Updates = updates
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.c.Idle(stop, nil)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var newMail, finished bool
	var idleErr error
	for waiting := true; waiting; {
		select {
		case upd := <-updates:
			if mb, ok := upd.(*client.MailboxUpdate); ok && mb.Mailbox != nil && mb.Mailbox.Messages > baseline {
				newMail = true
				waiting = false
			}
		case <-timer.C:
			waiting = false
		case idleErr = <-done:
			finished = true
			waiting = false
		}
	}

	// DONE terminator; the idle loop must unwind before the connection can
	// run further commands.
	close(stop)
	if !finished {
		idleErr = drainIdle(updates, done)
	}
	s.c.Updates = nil
	if idleErr != nil {
		s.logger.WithError(idleErr).Debug("IDLE ended with error")
	}

	result := &types.IdleResult{
		Folder:    folder,
		Supported: true,
		NewMail:   newMail,
		WaitedFor: time.Since(start),
	}

	if all, err := s.Search(&imap.SearchCriteria{}); err == nil {
		result.Total = len(all)
		if uint32(len(all)) > baseline {
			result.NewMail = true
		}
	}
	if unseen, err := s.Search(&imap.SearchCriteria{WithoutFlags: []string{imap.SeenFlag}}); err == nil {
		result.Unseen = len(unseen)
	}

	return result, nil
}
