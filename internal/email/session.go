package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"

	"github.com/wolethescientist/email-engine/internal/config"
	"github.com/wolethescientist/email-engine/pkg/types"
)

// Dialer opens authenticated IMAP and SMTP sessions. Every logical operation
// gets a fresh session; nothing is pooled or reused across operations.
type Dialer struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewDialer creates a dialer from explicit configuration.
func NewDialer(cfg *config.Config, logger *logrus.Logger) *Dialer {
	return &Dialer{cfg: cfg, logger: logger}
}

// ImapSession is a single-use authenticated IMAP connection. It is owned
// exclusively by the operation that opened it and must be closed on every
// exit path.
type ImapSession struct {
	c       *client.Client
	caps    map[string]bool
	logger  *logrus.Entry
	account string

	// Folder resolution results, valid for the lifetime of this session only.
	resolved map[types.LogicalFolder]string
}

// OpenIMAP dials, negotiates TLS and logs in. A rejected credential is
// reported as ErrAuthFailed so callers can prompt for reconnection; any
// other failure is ErrConnFailed.
func (d *Dialer) OpenIMAP(acc *config.AccountConfig, timeout time.Duration) (*ImapSession, error) {
	addr := fmt.Sprintf("%s:%d", acc.IMAPHost, acc.IMAPPort)
	tlsConfig := &tls.Config{
		ServerName: acc.IMAPHost,
		MinVersion: tls.VersionTLS12,
	}
	netDialer := &net.Dialer{Timeout: timeout}

	var cl *client.Client
	var err error
	if acc.IMAPUseSSL {
		cl, err = client.DialWithDialerTLS(netDialer, addr, tlsConfig)
	} else {
		cl, err = client.DialWithDialer(netDialer, addr)
		if err == nil {
			if err = cl.StartTLS(tlsConfig); err != nil {
				cl.Terminate() //nolint:errcheck
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: IMAP dial %s: %v", ErrConnFailed, addr, err)
	}

	cl.Timeout = timeout

	if err := cl.Login(acc.IMAPUsername, acc.IMAPPassword); err != nil {
		cl.Logout()    //nolint:errcheck
		cl.Terminate() //nolint:errcheck
		return nil, fmt.Errorf("%w: IMAP login for %s: %v", ErrAuthFailed, acc.Name, err)
	}

	caps, err := cl.Capability()
	if err != nil {
		// A session without a capability map is still usable for plain
		// reads; capability-gated features just stay off.
		caps = map[string]bool{}
	}

	logger := d.logger.WithField("account", acc.Name)
	logger.Debug("IMAP session opened")

	return &ImapSession{
		c:        cl,
		caps:     caps,
		logger:   logger,
		account:  acc.Name,
		resolved: make(map[types.LogicalFolder]string),
	}, nil
}

// Close tears the session down: release the selected folder, log out, then
// force the transport closed. Each step is attempted regardless of earlier
// failures, so Close is safe on every exit path.
func (s *ImapSession) Close() {
	if err := s.c.Close(); err != nil {
		s.logger.WithError(err).Debug("IMAP close failed")
	}
	if err := s.c.Logout(); err != nil {
		s.logger.WithError(err).Debug("IMAP logout failed")
	}
	if err := s.c.Terminate(); err != nil {
		s.logger.WithError(err).Debug("IMAP terminate failed")
	}
}

// Supports reports whether the server advertised the given capability.
func (s *ImapSession) Supports(capability string) bool {
	return s.caps[capability]
}

// OpenSMTP builds an SMTP client for the account. The connection is dialed
// lazily by the send itself; construction failures are configuration errors.
func (d *Dialer) OpenSMTP(acc *config.AccountConfig, timeout time.Duration) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(acc.SMTPPort),
		mail.WithTimeout(timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(acc.SMTPUsername),
		mail.WithPassword(acc.SMTPPassword),
	}
	if acc.SMTPUseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	cl, err := mail.NewClient(acc.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: SMTP client for %s: %v", ErrConnFailed, acc.Name, err)
	}
	return cl, nil
}

// classifySMTPError maps an SMTP submission failure onto the engine's error
// kinds. Reply codes 530/534/535 are authentication rejections.
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return fmt.Errorf("%w: SMTP: %v", ErrAuthFailed, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "auth") {
		return fmt.Errorf("%w: SMTP: %v", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: SMTP: %v", ErrSendFailed, err)
}
