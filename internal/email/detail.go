package email

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// FetchDetail retrieves and decodes one full message from the folder. It
// returns (nil, nil) when the identifier does not exist there; callers map
// that to a not-found condition.
func (s *ImapSession) FetchDetail(path string, folder types.LogicalFolder, id int64) (*types.MessageDetail, error) {
	return fetchDetail(s, s.logger, path, folder, id)
}

func fetchDetail(conn mailboxConn, logger *logrus.Entry, path string, folder types.LogicalFolder, id int64) (*types.MessageDetail, error) {
	// Sequence numbers are 32-bit on the wire; anything larger cannot name
	// a message and must not wrap on conversion.
	if id < 1 || id > math.MaxUint32 {
		return nil, nil
	}

	status, err := conn.SelectReadOnly(path)
	if err != nil {
		return nil, err
	}
	if uint32(id) > status.Messages {
		return nil, nil
	}

	raw, flags, err := fetchOne(conn, uint32(id), fullSection())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return DecodeDetail(logger, raw, flags, id, folder), nil
}
