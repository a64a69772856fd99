package email

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/wolethescientist/email-engine/pkg/types"
)

type fakePoller struct {
	*fakeMailbox

	all    []uint32
	unseen []uint32
	recent []uint32
	since  []uint32
	allErr error

	noops  int
	checks int
	closes int
	nudges int
}

func (f *fakePoller) Search(c *imap.SearchCriteria) ([]uint32, error) {
	switch {
	case len(c.WithoutFlags) > 0:
		return f.unseen, nil
	case len(c.WithFlags) > 0:
		return f.recent, nil
	case !c.Since.IsZero():
		return f.since, nil
	default:
		if f.allErr != nil {
			return nil, f.allErr
		}
		return f.all, nil
	}
}

func (f *fakePoller) Noop() error        { f.noops++; return nil }
func (f *fakePoller) Check() error       { f.checks++; return nil }
func (f *fakePoller) CloseFolder() error { f.closes++; return nil }

func (f *fakePoller) ProviderNudge(ProviderProfile) error { f.nudges++; return nil }

func TestPollFolderCountsAndSummaries(t *testing.T) {
	conn := &fakePoller{
		fakeMailbox: populatedMailbox(1, 2, 3, 4, 5, 6),
		all:         []uint32{1, 2, 3, 4, 5, 6},
		unseen:      []uint32{5, 6},
		recent:      []uint32{6},
		since:       []uint32{4, 5, 6},
	}

	result, err := pollFolder(conn, testEntry(), ProviderProfile{}, "INBOX", types.FolderInbox, 1, 2)
	if err != nil {
		t.Fatalf("pollFolder error: %v", err)
	}

	if result.Total != 6 {
		t.Errorf("Total = %d, want 6", result.Total)
	}
	if result.Unseen != 2 {
		t.Errorf("Unseen = %d, want 2", result.Unseen)
	}
	// The date window is unioned into recent because \Recent under-reports.
	if result.Recent != 3 {
		t.Errorf("Recent = %d, want 3", result.Recent)
	}

	got := make([]int64, 0, len(result.Messages))
	for _, m := range result.Messages {
		got = append(got, m.ID)
	}
	if !reflect.DeepEqual(got, []int64{6, 5}) {
		t.Errorf("message ids = %v, want newest two of the interesting set", got)
	}
}

func TestPollFolderRunsRefreshSequence(t *testing.T) {
	conn := &fakePoller{fakeMailbox: populatedMailbox(1, 2)}

	if _, err := pollFolder(conn, testEntry(), ProviderProfile{}, "INBOX", types.FolderInbox, 0, 5); err != nil {
		t.Fatalf("pollFolder error: %v", err)
	}
	if conn.noops < 1 {
		t.Error("keepalive was never sent")
	}
	if conn.checks != 1 {
		t.Errorf("checkpoints = %d, want 1", conn.checks)
	}
	if conn.closes != 1 {
		t.Errorf("folder releases = %d, want 1", conn.closes)
	}
	if conn.nudges != 1 {
		t.Errorf("provider nudges = %d, want 1", conn.nudges)
	}
}

func TestPollFolderTotalFallsBackToStatus(t *testing.T) {
	conn := &fakePoller{
		fakeMailbox: populatedMailbox(1, 2, 3),
		allErr:      errors.New("BAD search"),
	}

	result, err := pollFolder(conn, testEntry(), ProviderProfile{}, "INBOX", types.FolderInbox, 0, 5)
	if err != nil {
		t.Fatalf("pollFolder error: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want the selected status count", result.Total)
	}
}

func TestPollFolderSelectFailure(t *testing.T) {
	conn := &fakePoller{
		fakeMailbox: &fakeMailbox{selectErr: errors.New("NO select failed")},
	}
	if _, err := pollFolder(conn, testEntry(), ProviderProfile{}, "INBOX", types.FolderInbox, 0, 5); err == nil {
		t.Fatal("error = nil, want select failure")
	}
}

func TestUnionIDs(t *testing.T) {
	got := unionIDs([]uint32{3, 1}, []uint32{1, 2, 3, 4})
	if !reflect.DeepEqual(got, []uint32{3, 1, 2, 4}) {
		t.Errorf("unionIDs = %v", got)
	}
	if unionIDs(nil, nil) != nil {
		t.Error("unionIDs(nil, nil) should stay nil")
	}
}

func TestIdleWaitWithoutCapability(t *testing.T) {
	s := &ImapSession{caps: map[string]bool{"IMAP4REV1": true}, logger: testEntry()}

	start := time.Now()
	result, err := s.IdleWait("INBOX", types.FolderInbox, 10*time.Second)
	if err != nil {
		t.Fatalf("IdleWait error: %v", err)
	}
	if result.Supported {
		t.Error("Supported = true without the IDLE capability")
	}
	if result.NewMail {
		t.Error("NewMail = true without waiting")
	}
	// The unsupported path must return immediately, not run out the wait.
	if time.Since(start) > time.Second {
		t.Error("unsupported IDLE path blocked")
	}
}

func TestDrainIdleSurvivesUpdateBurst(t *testing.T) {
	updates := make(chan client.Update)
	done := make(chan error)
	want := errors.New("idle finished")

	// Deliver a burst of pushes with blocking sends, the way the client's
	// reader does, before the idle goroutine reports completion.
	go func() {
		for i := 0; i < 64; i++ {
			updates <- &client.MailboxUpdate{}
		}
		done <- want
	}()

	result := make(chan error, 1)
	go func() { result <- drainIdle(updates, done) }()

	select {
	case err := <-result:
		if err != want {
			t.Errorf("drainIdle = %v, want the idle result", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drainIdle blocked behind pending updates")
	}
}

func TestDetectProfile(t *testing.T) {
	cases := []struct {
		caps map[string]bool
		want ProviderProfile
	}{
		{
			caps: map[string]bool{"IDLE": true, "X-GM-EXT-1": true},
			want: ProviderProfile{GmailExtensions: true, Idle: true},
		},
		{
			caps: map[string]bool{"idle": true},
			want: ProviderProfile{Idle: true},
		},
		{
			caps: map[string]bool{"IMAP4REV1": true},
			want: ProviderProfile{Sluggish: true},
		},
		{
			caps: nil,
			want: ProviderProfile{Sluggish: true},
		},
	}
	for i, c := range cases {
		if got := DetectProfile(c.caps); got != c.want {
			t.Errorf("case %d: DetectProfile = %+v, want %+v", i, got, c.want)
		}
	}
}
