package store

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st, err := Open(":memory:", logger)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func draftPayload(subject string) *types.DraftPayload {
	return &types.DraftPayload{
		Subject: subject,
		Body:    "body of " + subject,
		To:      []string{"bob@example.com"},
		Cc:      []string{"carol@example.com"},
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	st := testStore(t)

	payload := draftPayload("quarterly")
	payload.Attachments = []types.Attachment{
		{Filename: "q.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		{Filename: "raw.bin", Content: []byte{0, 1, 2}},
	}

	created, err := st.CreateDraft("work", payload, "alice@example.com")
	if err != nil {
		t.Fatalf("CreateDraft error: %v", err)
	}
	if created.ID < 1 {
		t.Fatalf("ID = %d, want assigned", created.ID)
	}
	if created.Folder != types.FolderDrafts {
		t.Errorf("Folder = %s, want Drafts", created.Folder)
	}
	if !created.IsRead {
		t.Error("IsRead = false, want drafts marked read")
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	got, err := st.GetByID("work", created.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Subject != "quarterly" || got.FromAddress != "alice@example.com" {
		t.Errorf("record = %+v", got)
	}
	if len(got.ToAddresses) != 1 || got.ToAddresses[0] != "bob@example.com" {
		t.Errorf("ToAddresses = %v", got.ToAddresses)
	}
	if len(got.BccAddresses) != 0 {
		t.Errorf("BccAddresses = %v, want empty", got.BccAddresses)
	}
	if len(got.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(got.Attachments))
	}
	if got.Attachments[0].Filename != "q.pdf" || string(got.Attachments[0].Content) != "%PDF" {
		t.Errorf("attachment = %+v", got.Attachments[0])
	}
}

func TestGetByIDScoping(t *testing.T) {
	st := testStore(t)

	created, err := st.CreateSent("work", draftPayload("x"), "alice@example.com")
	if err != nil {
		t.Fatalf("CreateSent error: %v", err)
	}

	if rec, err := st.GetByID("work", 9999); err != nil || rec != nil {
		t.Errorf("unknown id: (%v, %v), want (nil, nil)", rec, err)
	}
	if rec, err := st.GetByID("other", created.ID); err != nil || rec != nil {
		t.Errorf("wrong account: (%v, %v), want (nil, nil)", rec, err)
	}
}

func TestListByFolderPagination(t *testing.T) {
	st := testStore(t)

	for i := 1; i <= 5; i++ {
		if _, err := st.CreateSent("work", draftPayload(fmt.Sprintf("msg %d", i)), "alice@example.com"); err != nil {
			t.Fatalf("CreateSent error: %v", err)
		}
	}
	if _, err := st.CreateDraft("work", draftPayload("a draft"), "alice@example.com"); err != nil {
		t.Fatalf("CreateDraft error: %v", err)
	}
	if _, err := st.CreateSent("other", draftPayload("not mine"), "eve@example.com"); err != nil {
		t.Fatalf("CreateSent error: %v", err)
	}

	total, page1, err := st.ListByFolder("work", types.FolderSent, 1, 2)
	if err != nil {
		t.Fatalf("ListByFolder error: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5 in Sent for this account", total)
	}
	if len(page1) != 2 || page1[0].Subject != "msg 5" || page1[1].Subject != "msg 4" {
		t.Errorf("page 1 = %v, want newest first", page1)
	}

	total, page3, err := st.ListByFolder("work", types.FolderSent, 3, 2)
	if err != nil {
		t.Fatalf("ListByFolder error: %v", err)
	}
	if total != 5 || len(page3) != 1 || page3[0].Subject != "msg 1" {
		t.Errorf("page 3 = %v (total %d)", page3, total)
	}

	total, empty, err := st.ListByFolder("work", types.FolderTrash, 1, 10)
	if err != nil {
		t.Fatalf("ListByFolder error: %v", err)
	}
	if total != 0 || len(empty) != 0 {
		t.Errorf("Trash listing = %v (total %d), want empty", empty, total)
	}
}

func TestMoveFolder(t *testing.T) {
	st := testStore(t)

	created, err := st.CreateDraft("work", draftPayload("to send"), "alice@example.com")
	if err != nil {
		t.Fatalf("CreateDraft error: %v", err)
	}

	moved, err := st.MoveFolder("work", created.ID, types.FolderTrash)
	if err != nil {
		t.Fatalf("MoveFolder error: %v", err)
	}
	if moved == nil || moved.Folder != types.FolderTrash {
		t.Errorf("moved = %+v, want Trash", moved)
	}

	if rec, err := st.MoveFolder("work", 9999, types.FolderTrash); err != nil || rec != nil {
		t.Errorf("unknown id: (%v, %v), want (nil, nil)", rec, err)
	}
	if rec, err := st.MoveFolder("other", created.ID, types.FolderTrash); err != nil || rec != nil {
		t.Errorf("wrong account: (%v, %v), want (nil, nil)", rec, err)
	}
}

func TestSetReadFlag(t *testing.T) {
	st := testStore(t)

	created, err := st.CreateSent("work", draftPayload("read me"), "alice@example.com")
	if err != nil {
		t.Fatalf("CreateSent error: %v", err)
	}

	updated, err := st.SetReadFlag("work", created.ID, false)
	if err != nil {
		t.Fatalf("SetReadFlag error: %v", err)
	}
	if updated == nil || updated.IsRead {
		t.Errorf("updated = %+v, want unread", updated)
	}

	updated, err = st.SetReadFlag("work", created.ID, true)
	if err != nil {
		t.Fatalf("SetReadFlag error: %v", err)
	}
	if updated == nil || !updated.IsRead {
		t.Errorf("updated = %+v, want read", updated)
	}

	if rec, err := st.SetReadFlag("work", 9999, true); err != nil || rec != nil {
		t.Errorf("unknown id: (%v, %v), want (nil, nil)", rec, err)
	}
}
