package email

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"
	mail "github.com/wneessen/go-mail"

	"github.com/wolethescientist/email-engine/pkg/types"
)

// extensionTypes maps attachment filename extensions to content types, used
// when the caller's declared type is missing or malformed.
var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".html": "text/html",
	".csv":  "text/csv",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// contentTypeFor returns the attachment's content type: the declared one
// when it has a "type/subtype" shape, otherwise a guess from the filename
// extension, otherwise a generic binary type.
func contentTypeFor(filename, declared string) string {
	if declared != "" && strings.Count(declared, "/") == 1 && !strings.HasPrefix(declared, "/") && !strings.HasSuffix(declared, "/") {
		return declared
	}
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// BuildMessage assembles the outbound MIME message: From/To/Cc/Subject
// headers, a Date header (always set), a plain-text body and any
// attachments.
func BuildMessage(from string, payload *types.DraftPayload) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.To(payload.To...); err != nil {
		return nil, fmt.Errorf("invalid to addresses: %w", err)
	}
	if len(payload.Cc) > 0 {
		if err := m.Cc(payload.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc addresses: %w", err)
		}
	}
	if len(payload.Bcc) > 0 {
		if err := m.Bcc(payload.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc addresses: %w", err)
		}
	}
	m.Subject(payload.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, payload.Body)

	for _, att := range payload.Attachments {
		ct := contentTypeFor(att.Filename, att.ContentType)
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Content), mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", att.Filename, err)
		}
	}

	return m, nil
}

// RawMessage renders the message to wire bytes. Bcc is excluded from the
// rendered headers, so the bytes are safe to mirror into the Sent folder.
func RawMessage(m *mail.Msg) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeCRLF rewrites bare LF line endings to CRLF. APPEND-strict servers
// (Yahoo among them) reject literals with bare newlines.
func NormalizeCRLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
	return bytes.ReplaceAll(b, []byte("\r\r\n"), []byte("\r\n"))
}

// hasPlainPart walks the part tree looking for an actual text/plain part.
// enmime synthesizes Text from HTML-only messages, so a non-empty Text alone
// cannot distinguish a real plain-text body from a down-conversion.
func hasPlainPart(p *enmime.Part) bool {
	if p == nil {
		return false
	}
	if p.ContentType == "text/plain" {
		return true
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if hasPlainPart(c) {
			return true
		}
	}
	return false
}

// isSeen reports whether the flag set marks the message as read.
func isSeen(flags []string) bool {
	for _, f := range flags {
		if f == imap.SeenFlag {
			return true
		}
	}
	return false
}

// addressList decodes one address header to display strings. A decode
// failure degrades to the raw header value rather than dropping the field.
func addressList(env *enmime.Envelope, key string) []string {
	addrs, err := env.AddressList(key)
	if err != nil || len(addrs) == 0 {
		if raw := env.GetHeader(key); raw != "" {
			return []string{raw}
		}
		return []string{}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func firstOrEmpty(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

// DecodeSummary decodes header bytes plus flags into a listing row. Header
// decode failures degrade field by field; only a completely unparseable
// header yields a bare summary.
func DecodeSummary(logger *logrus.Entry, raw []byte, flags []string, id int64, folder types.LogicalFolder) types.MessageSummary {
	summary := types.MessageSummary{
		ID:          id,
		Folder:      folder,
		ToAddresses: []string{},
		IsRead:      isSeen(flags),
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		logger.WithError(err).WithField("id", id).Debug("Header decode failed")
		return summary
	}

	summary.Subject = env.GetHeader("Subject")
	summary.FromAddress = firstOrEmpty(addressList(env, "From"))
	summary.ToAddresses = addressList(env, "To")
	return summary
}

// DecodeDetail decodes a full message. The body is the first plain-text
// part, falling back to HTML, falling back to empty; attachment filenames
// come from parts with an attachment disposition. Individual part failures
// are reported by the parser as warnings and do not abort the decode.
func DecodeDetail(logger *logrus.Entry, raw []byte, flags []string, id int64, folder types.LogicalFolder) *types.MessageDetail {
	detail := &types.MessageDetail{
		ID:           id,
		Folder:       folder,
		ToAddresses:  []string{},
		CcAddresses:  []string{},
		BccAddresses: []string{},
		Attachments:  []string{},
		IsRead:       isSeen(flags),
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		logger.WithError(err).WithField("id", id).Debug("Message decode failed")
		return detail
	}
	for _, e := range env.Errors {
		logger.WithField("id", id).WithField("reason", e.Error()).Debug("Degraded decode")
	}

	detail.Subject = env.GetHeader("Subject")
	detail.FromAddress = firstOrEmpty(addressList(env, "From"))
	detail.ToAddresses = addressList(env, "To")
	detail.CcAddresses = addressList(env, "Cc")
	detail.BccAddresses = addressList(env, "Bcc")

	if env.HTML != "" && !hasPlainPart(env.Root) {
		detail.Body = env.HTML
	} else {
		detail.Body = env.Text
	}

	for _, part := range env.Attachments {
		detail.Attachments = append(detail.Attachments, part.FileName)
	}

	return detail
}
