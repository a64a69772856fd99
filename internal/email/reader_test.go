package email

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/emersion/go-imap"

	"github.com/wolethescientist/email-engine/pkg/types"
)

type fakeMailbox struct {
	status    *imap.MailboxStatus
	selectErr error
	ids       []uint32
	searchErr error
	bodies    map[uint32][]byte
	flags     map[uint32][]string
	fetchErr  error
}

func (f *fakeMailbox) SelectReadOnly(name string) (*imap.MailboxStatus, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	if f.status != nil {
		return f.status, nil
	}
	return &imap.MailboxStatus{Name: name, Messages: uint32(len(f.ids))}, nil
}

func (f *fakeMailbox) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.ids, nil
}

func (f *fakeMailbox) Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	if f.fetchErr != nil {
		return f.fetchErr
	}
	section, err := imap.ParseBodySectionName(items[0])
	if err != nil {
		return err
	}
	// Servers answer BODY.PEEK requests with plain BODY sections; GetBody
	// matches against that response form, so the key must not carry Peek.
	key := *section
	key.Peek = false
	for _, seq := range seqset.Set {
		raw, ok := f.bodies[seq.Start]
		if !ok {
			continue
		}
		ch <- &imap.Message{
			SeqNum: seq.Start,
			Flags:  f.flags[seq.Start],
			Body:   map[*imap.BodySectionName]imap.Literal{&key: bytes.NewBuffer(raw)},
		}
	}
	return nil
}

func headerBytes(id uint32) []byte {
	return []byte(fmt.Sprintf("From: alice@example.com\r\nTo: bob@example.com\r\nSubject: msg %d\r\n\r\n", id))
}

func populatedMailbox(ids ...uint32) *fakeMailbox {
	f := &fakeMailbox{
		ids:    ids,
		bodies: make(map[uint32][]byte),
		flags:  make(map[uint32][]string),
	}
	for _, id := range ids {
		f.bodies[id] = headerBytes(id)
	}
	return f
}

func summaryIDs(list *types.MessageList) []int64 {
	out := make([]int64, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, item.ID)
	}
	return out
}

func TestListPageNewestFirst(t *testing.T) {
	conn := populatedMailbox(1, 2, 3, 4, 5)

	list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 1, 2)
	if list.Total != 5 {
		t.Errorf("Total = %d, want 5", list.Total)
	}
	if got := summaryIDs(list); !reflect.DeepEqual(got, []int64{5, 4}) {
		t.Fatalf("page 1 ids = %v, want [5 4]", got)
	}
	if list.Items[0].Subject != "msg 5" {
		t.Errorf("Subject = %q, want msg 5", list.Items[0].Subject)
	}
}

func TestListPageLastPartialPage(t *testing.T) {
	conn := populatedMailbox(1, 2, 3, 4, 5)

	list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 3, 2)
	if list.Total != 5 {
		t.Errorf("Total = %d, want 5", list.Total)
	}
	if got := summaryIDs(list); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("page 3 ids = %v, want [1]", got)
	}
}

func TestListPagePastEndKeepsTotal(t *testing.T) {
	conn := populatedMailbox(1, 2, 3)

	list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 5, 2)
	if list.Total != 3 {
		t.Errorf("Total = %d, want 3", list.Total)
	}
	if len(list.Items) != 0 {
		t.Errorf("items = %v, want empty past the end", list.Items)
	}
}

func TestListPageRepeatedCallsAgree(t *testing.T) {
	conn := populatedMailbox(1, 2, 3, 4)

	first := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 1, 3)
	second := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 1, 3)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated listing diverged: %v vs %v", first, second)
	}
}

func TestListPageSelectFailureYieldsEmpty(t *testing.T) {
	conn := &fakeMailbox{selectErr: errors.New("NO select failed")}

	list := listPage(conn, testEntry(), "Missing", types.FolderSent, 1, 10)
	if list.Total != 0 || len(list.Items) != 0 {
		t.Errorf("list = %+v, want empty on select failure", list)
	}
}

func TestListPageSearchFailureYieldsEmpty(t *testing.T) {
	conn := populatedMailbox(1, 2)
	conn.searchErr = errors.New("BAD search")

	list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 1, 10)
	if list.Total != 0 || len(list.Items) != 0 {
		t.Errorf("list = %+v, want empty on search failure", list)
	}
}

func TestListPageSkipsUnfetchableMessage(t *testing.T) {
	conn := populatedMailbox(1, 2, 3, 4, 5)
	delete(conn.bodies, 4)

	list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, 1, 2)
	if list.Total != 5 {
		t.Errorf("Total = %d, want 5", list.Total)
	}
	if got := summaryIDs(list); !reflect.DeepEqual(got, []int64{5}) {
		t.Errorf("ids = %v, want [5] with unfetchable 4 skipped", got)
	}
}

func TestListPageInvalidPaging(t *testing.T) {
	conn := populatedMailbox(1, 2)

	for _, c := range []struct{ page, size int }{{0, 5}, {1, 0}, {-1, -1}} {
		list := listPage(conn, testEntry(), "INBOX", types.FolderInbox, c.page, c.size)
		if list.Total != 0 || len(list.Items) != 0 {
			t.Errorf("page=%d size=%d: list = %+v, want empty", c.page, c.size, list)
		}
	}
}
