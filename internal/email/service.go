package email

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/internal/config"
	"github.com/wolethescientist/email-engine/pkg/types"
)

// Service is the live-mailbox operation surface. Every method opens a fresh
// session, runs one logical operation and tears the session down; sessions
// are never shared between operations, so concurrent calls need no
// protocol-level locking.
type Service struct {
	dialer      *Dialer
	coordinator *Coordinator
	cfg         *config.Config
	logger      *logrus.Logger
}

// NewService builds the service from explicit configuration.
func NewService(cfg *config.Config, st SentStore, logger *logrus.Logger) *Service {
	dialer := NewDialer(cfg, logger)
	return &Service{
		dialer:      dialer,
		coordinator: NewCoordinator(dialer, st, cfg, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *Service) imapTimeout() time.Duration {
	return time.Duration(s.cfg.IMAPTimeoutSeconds) * time.Second
}

// ListFolder lists one page of a logical folder against the live server.
func (s *Service) ListFolder(acc *config.AccountConfig, folder types.LogicalFolder, page, size int) (*types.MessageList, error) {
	sess, err := s.dialer.OpenIMAP(acc, s.imapTimeout())
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	path, err := sess.ResolveFolder(folder, false)
	if err != nil {
		return &types.MessageList{Total: 0, Items: []types.MessageSummary{}}, nil
	}
	return sess.ListPage(path, folder, page, size), nil
}

// FetchDetail retrieves one full message; (nil, nil) means not found.
func (s *Service) FetchDetail(acc *config.AccountConfig, folder types.LogicalFolder, id int64) (*types.MessageDetail, error) {
	sess, err := s.dialer.OpenIMAP(acc, s.imapTimeout())
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	path, err := sess.ResolveFolder(folder, false)
	if err != nil {
		return nil, nil
	}
	return sess.FetchDetail(path, folder, id)
}

// Send transmits the payload and returns the durable sent record.
func (s *Service) Send(acc *config.AccountConfig, payload *types.DraftPayload) (*types.Record, error) {
	return s.coordinator.Send(acc, payload)
}

// Poll runs one active-polling pass over the folder.
func (s *Service) Poll(acc *config.AccountConfig, folder types.LogicalFolder, timeout time.Duration) (*types.PollResult, error) {
	sess, err := s.dialer.OpenIMAP(acc, timeout)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	path, err := sess.ResolveFolder(folder, false)
	if err != nil {
		return nil, err
	}
	return sess.PollFolder(path, folder, s.cfg.PollSinceHours, s.cfg.PollFetchLimit)
}

// Idle blocks on server pushes for up to timeout. The session's own command
// timeout is padded past the wait so the blocking read is bounded by the
// caller's deadline, not the dial deadline.
func (s *Service) Idle(acc *config.AccountConfig, folder types.LogicalFolder, timeout time.Duration) (*types.IdleResult, error) {
	sess, err := s.dialer.OpenIMAP(acc, timeout+30*time.Second)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	path, err := sess.ResolveFolder(folder, false)
	if err != nil {
		return nil, err
	}
	return sess.IdleWait(path, folder, timeout)
}
