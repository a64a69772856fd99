package email

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"

	"github.com/wolethescientist/email-engine/internal/config"
	"github.com/wolethescientist/email-engine/pkg/types"
)

// SentStore is the durable-store slice the coordinator needs: the
// unconditional sent copy and the draft soft-delete.
type SentStore interface {
	CreateSent(account string, payload *types.DraftPayload, from string) (*types.Record, error)
	MoveFolder(account string, id int64, folder types.LogicalFolder) (*types.Record, error)
}

// smtpSender transmits one built message for an account.
type smtpSender interface {
	Send(acc *config.AccountConfig, m *mail.Msg, timeout time.Duration) error
}

// mirrorSession is the IMAP-session slice used for the Sent-folder mirror.
type mirrorSession interface {
	ResolveFolder(logical types.LogicalFolder, forWrite bool) (string, error)
	Append(mbox string, flags []string, date time.Time, raw []byte) error
	CreateMailbox(name string) error
	Close()
}

// mirrorDialer opens a fresh session for each mirror attempt.
type mirrorDialer interface {
	OpenMirror(acc *config.AccountConfig, timeout time.Duration) (mirrorSession, error)
}

// Append appends raw message bytes to a mailbox. A zero date or nil flags
// omit the corresponding APPEND argument.
func (s *ImapSession) Append(mbox string, flags []string, date time.Time, raw []byte) error {
	return s.c.Append(mbox, flags, date, bytes.NewBuffer(raw))
}

type dialerSMTP struct {
	d *Dialer
}

func (ds dialerSMTP) Send(acc *config.AccountConfig, m *mail.Msg, timeout time.Duration) error {
	cl, err := ds.d.OpenSMTP(acc, timeout)
	if err != nil {
		return err
	}
	if err := cl.DialAndSend(m); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

type dialerMirror struct {
	d *Dialer
}

func (dm dialerMirror) OpenMirror(acc *config.AccountConfig, timeout time.Duration) (mirrorSession, error) {
	sess, err := dm.d.OpenIMAP(acc, timeout)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Coordinator runs a send: SMTP transmission first, then a best-effort
// mirror of the transmitted bytes into the server's Sent folder, then the
// guaranteed durable persist. The order is fixed; nothing is persisted when
// transmission fails, and mirror failures never fail the send.
type Coordinator struct {
	smtp   smtpSender
	mirror mirrorDialer
	store  SentStore
	cfg    *config.Config
	logger *logrus.Logger
}

// NewCoordinator wires a coordinator from the shared dialer, store and
// configuration.
func NewCoordinator(d *Dialer, st SentStore, cfg *config.Config, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		smtp:   dialerSMTP{d: d},
		mirror: dialerMirror{d: d},
		store:  st,
		cfg:    cfg,
		logger: logger,
	}
}

// Send transmits the payload and returns the durable sent record.
func (c *Coordinator) Send(acc *config.AccountConfig, payload *types.DraftPayload) (*types.Record, error) {
	logger := c.logger.WithFields(logrus.Fields{
		"op":      uuid.NewString(),
		"account": acc.Name,
	})
	from := acc.SMTPUsername

	msg, err := BuildMessage(from, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	smtpTimeout := time.Duration(c.cfg.SMTPTimeoutSeconds) * time.Second
	if err := c.smtp.Send(acc, msg, smtpTimeout); err != nil {
		return nil, err
	}
	logger.WithField("recipients", len(payload.To)+len(payload.Cc)+len(payload.Bcc)).Info("Message transmitted")

	if raw, err := RawMessage(msg); err != nil {
		logger.WithError(err).Warn("Could not render message for mirroring")
	} else if c.mirrorToSent(acc, raw, logger) {
		logger.Info("Mirrored message to Sent folder")
	} else {
		logger.Warn("Failed to mirror message to Sent folder")
	}

	record, err := c.store.CreateSent(acc.Name, payload, from)
	if err != nil {
		return nil, fmt.Errorf("failed to persist sent copy: %w", err)
	}

	if payload.DraftID > 0 {
		if _, err := c.store.MoveFolder(acc.Name, payload.DraftID, types.FolderTrash); err != nil {
			logger.WithError(err).WithField("draft_id", payload.DraftID).Warn("Failed to trash draft")
		}
	}

	return record, nil
}

// mirrorToSent appends the transmitted bytes to the server's Sent folder.
// Purely best-effort: the caller logs the outcome and moves on either way.
func (c *Coordinator) mirrorToSent(acc *config.AccountConfig, raw []byte, logger *logrus.Entry) bool {
	raw = NormalizeCRLF(raw)
	appendTimeout := time.Duration(c.cfg.AppendTimeoutSeconds) * time.Second

	cycles := c.cfg.AppendRetryCycles
	if cycles < 1 {
		cycles = 1
	}
	for attempt := 1; attempt <= cycles; attempt++ {
		if attempt > 1 {
			time.Sleep(2 * time.Second)
		}
		sess, err := c.mirror.OpenMirror(acc, appendTimeout)
		if err != nil {
			logger.WithError(err).WithField("attempt", attempt).Warn("Mirror connection failed")
			continue
		}
		if c.appendOnce(sess, raw, logger) {
			return true
		}
	}
	return false
}

// appendOnce resolves Sent and runs the tiered append on one session,
// creating the folder and retrying if the first pass fails outright.
func (c *Coordinator) appendOnce(sess mirrorSession, raw []byte, logger *logrus.Entry) bool {
	defer sess.Close()

	path, err := sess.ResolveFolder(types.FolderSent, true)
	if err != nil {
		logger.WithError(err).Warn("Could not resolve Sent folder")
		return false
	}

	if appendTiers(sess, path, raw, logger) {
		return true
	}

	// The resolved path may still not exist server-side; create it and run
	// the tiers once more.
	if err := sess.CreateMailbox(path); err != nil {
		logger.WithError(err).WithField("path", path).Debug("Create mailbox failed")
	}
	return appendTiers(sess, path, raw, logger)
}

// appendTiers tries APPEND with flags and timestamp, then without flags,
// then bare. Strict servers reject the richer forms.
func appendTiers(sess mirrorSession, path string, raw []byte, logger *logrus.Entry) bool {
	now := time.Now()
	tiers := []struct {
		label string
		flags []string
		date  time.Time
	}{
		{"flags+date", []string{imap.SeenFlag}, now},
		{"date", nil, now},
		{"bare", nil, time.Time{}},
	}
	for _, tier := range tiers {
		if err := sess.Append(path, tier.flags, tier.date, raw); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"path": path,
				"tier": tier.label,
			}).Debug("Append attempt failed")
			continue
		}
		return true
	}
	return false
}
