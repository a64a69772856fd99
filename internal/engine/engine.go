package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/internal/config"
	"github.com/wolethescientist/email-engine/internal/email"
	"github.com/wolethescientist/email-engine/pkg/types"
)

// ErrNotFound mirrors the mail layer's sentinel so callers only need one
// import to branch on it.
var ErrNotFound = email.ErrNotFound

// Mailer is the live-mailbox surface the engine consumes.
type Mailer interface {
	ListFolder(acc *config.AccountConfig, folder types.LogicalFolder, page, size int) (*types.MessageList, error)
	FetchDetail(acc *config.AccountConfig, folder types.LogicalFolder, id int64) (*types.MessageDetail, error)
	Send(acc *config.AccountConfig, payload *types.DraftPayload) (*types.Record, error)
	Poll(acc *config.AccountConfig, folder types.LogicalFolder, timeout time.Duration) (*types.PollResult, error)
	Idle(acc *config.AccountConfig, folder types.LogicalFolder, timeout time.Duration) (*types.IdleResult, error)
}

// Storage is the durable-store surface the engine consumes. Each call is a
// single transaction.
type Storage interface {
	CreateDraft(account string, payload *types.DraftPayload, from string) (*types.Record, error)
	GetByID(account string, id int64) (*types.Record, error)
	ListByFolder(account string, folder types.LogicalFolder, page, size int) (int, []*types.Record, error)
	MoveFolder(account string, id int64, folder types.LogicalFolder) (*types.Record, error)
	SetReadFlag(account string, id int64, isRead bool) (*types.Record, error)
}

// Engine applies the consistency policy on top of the live server and the
// durable store: live data is preferred when it exists, the store backs the
// folders this system itself writes (Sent, Drafts), and authentication
// failures are never masked.
type Engine struct {
	mailer Mailer
	store  Storage
	cfg    *config.Config
	logger *logrus.Logger
}

// New wires an engine.
func New(mailer Mailer, store Storage, cfg *config.Config, logger *logrus.Logger) *Engine {
	return &Engine{mailer: mailer, store: store, cfg: cfg, logger: logger}
}

func (e *Engine) account(name string) (*config.AccountConfig, error) {
	return e.cfg.GetAccountByName(name)
}

// hasDurableFallback reports whether the store is a meaningful fallback for
// the folder. Only folders this system writes itself qualify.
func hasDurableFallback(folder types.LogicalFolder) bool {
	return folder == types.FolderSent || folder == types.FolderDrafts
}

func recordSummary(r *types.Record) types.MessageSummary {
	return types.MessageSummary{
		ID:          r.ID,
		Folder:      r.Folder,
		Subject:     r.Subject,
		FromAddress: r.FromAddress,
		ToAddresses: r.ToAddresses,
		IsRead:      r.IsRead,
	}
}

func recordDetail(r *types.Record) *types.MessageDetail {
	names := make([]string, 0, len(r.Attachments))
	for _, att := range r.Attachments {
		names = append(names, att.Filename)
	}
	return &types.MessageDetail{
		ID:           r.ID,
		Folder:       r.Folder,
		Subject:      r.Subject,
		Body:         r.Body,
		FromAddress:  r.FromAddress,
		ToAddresses:  r.ToAddresses,
		CcAddresses:  r.CcAddresses,
		BccAddresses: r.BccAddresses,
		IsRead:       r.IsRead,
		Attachments:  names,
	}
}

// ListFolder lists one page of a logical folder. Live data wins when it
// exists; for Sent and Drafts an unreachable or empty live folder falls
// back to the durable store.
func (e *Engine) ListFolder(account string, folder types.LogicalFolder, page, size int) (*types.MessageList, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("invalid folder: %s", folder)
	}
	acc, err := e.account(account)
	if err != nil {
		return nil, err
	}

	list, err := e.mailer.ListFolder(acc, folder, page, size)
	if err != nil {
		if errors.Is(err, email.ErrAuthFailed) || !hasDurableFallback(folder) {
			return nil, err
		}
		e.logger.WithError(err).WithField("folder", folder).Debug("Live listing failed, using store")
	}
	if err == nil && list.Total > 0 {
		return list, nil
	}
	if !hasDurableFallback(folder) {
		if err != nil {
			return nil, err
		}
		return list, nil
	}

	total, records, err := e.store.ListByFolder(account, folder, page, size)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s from store: %w", folder, err)
	}
	items := make([]types.MessageSummary, 0, len(records))
	for _, r := range records {
		items = append(items, recordSummary(r))
	}
	return &types.MessageList{Total: total, Items: items}, nil
}

// FetchDetail retrieves one full message. For Sent and Drafts the durable
// store answers when the live server cannot; elsewhere a missing message is
// ErrNotFound.
func (e *Engine) FetchDetail(account string, folder types.LogicalFolder, id int64) (*types.MessageDetail, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("invalid folder: %s", folder)
	}
	acc, err := e.account(account)
	if err != nil {
		return nil, err
	}

	detail, err := e.mailer.FetchDetail(acc, folder, id)
	if err != nil && errors.Is(err, email.ErrAuthFailed) {
		return nil, err
	}
	if err == nil && detail != nil {
		return detail, nil
	}

	if hasDurableFallback(folder) {
		record, serr := e.store.GetByID(account, id)
		if serr != nil {
			return nil, fmt.Errorf("failed to get message from store: %w", serr)
		}
		if record != nil && record.Folder == folder {
			return recordDetail(record), nil
		}
	}

	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s id %d", ErrNotFound, folder, id)
}

// SaveDraft persists a draft in the durable store and returns its id.
func (e *Engine) SaveDraft(account string, payload *types.DraftPayload) (int64, error) {
	acc, err := e.account(account)
	if err != nil {
		return 0, err
	}
	record, err := e.store.CreateDraft(account, payload, acc.SMTPUsername)
	if err != nil {
		return 0, fmt.Errorf("failed to save draft: %w", err)
	}
	return record.ID, nil
}

// Send transmits the payload and returns the detail of the durable sent
// record.
func (e *Engine) Send(account string, payload *types.DraftPayload) (*types.MessageDetail, error) {
	if len(payload.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	acc, err := e.account(account)
	if err != nil {
		return nil, err
	}
	record, err := e.mailer.Send(acc, payload)
	if err != nil {
		return nil, err
	}
	return recordDetail(record), nil
}

// MoveMessage moves a durable record to another logical folder.
func (e *Engine) MoveMessage(account string, id int64, folder types.LogicalFolder) (*types.MessageDetail, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("invalid folder: %s", folder)
	}
	record, err := e.store.MoveFolder(account, id, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to move message: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return recordDetail(record), nil
}

// MarkRead updates a durable record's read flag.
func (e *Engine) MarkRead(account string, id int64, isRead bool) (*types.MessageDetail, error) {
	record, err := e.store.SetReadFlag(account, id, isRead)
	if err != nil {
		return nil, fmt.Errorf("failed to set read flag: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return recordDetail(record), nil
}

// Poll runs one active change-detection pass over the folder.
func (e *Engine) Poll(account string, folder types.LogicalFolder, timeout time.Duration) (*types.PollResult, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("invalid folder: %s", folder)
	}
	acc, err := e.account(account)
	if err != nil {
		return nil, err
	}
	return e.mailer.Poll(acc, folder, timeout)
}

// Idle waits for server pushes on the folder for up to timeout.
func (e *Engine) Idle(account string, folder types.LogicalFolder, timeout time.Duration) (*types.IdleResult, error) {
	if !folder.Valid() {
		return nil, fmt.Errorf("invalid folder: %s", folder)
	}
	acc, err := e.account(account)
	if err != nil {
		return nil, err
	}
	return e.mailer.Idle(acc, folder, timeout)
}
