package mail

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	netmail "net/mail"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/shandysiswandi/gosend/internal/pkg/clock"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSubjectLength is the number of characters kept from a subject line.
	MaxSubjectLength = 200
	// MaxBodyLength is the number of characters kept from a text body.
	MaxBodyLength = 5000

	defaultAttachmentName = "attachment"
)

var reUnsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Attachment is a binary file embedded in an outbound message.
type Attachment struct {
	// Filename is the client supplied name; it is sanitized on build.
	Filename string
	// ContentType overrides the type derived from the filename extension.
	ContentType string
	// Content is the raw file payload.
	Content []byte
}

// Message is the composition input for a single recipient.
type Message struct {
	// From is the sender address, also used as the envelope sender.
	From string
	// FromName is an optional display name for the From header.
	FromName string
	// To is the single recipient address.
	To string
	// Subject is truncated to MaxSubjectLength characters.
	Subject string
	// TextBody is truncated to MaxBodyLength characters.
	TextBody string
	// Attachment is required.
	Attachment Attachment
}

// Outbound is an encoded message ready for submission.
type Outbound struct {
	From string
	To   string
	Data []byte
}

// Builder encodes Message values into RFC 5322 documents.
//
// Two calls with identical input and an identical clock reading produce
// identical bytes.
type Builder struct {
	clock clock.Clocker
}

// NewBuilder returns a Builder stamping the Date header from c.
func NewBuilder(c clock.Clocker) *Builder {
	return &Builder{clock: c}
}

// Build encodes msg. It fails with ErrAttachment when the attachment is empty
// or cannot be encoded.
func (b *Builder) Build(msg Message) (*Outbound, error) {
	if len(msg.Attachment.Content) == 0 {
		return nil, newError(ErrAttachment, "attach", errEmptyAttachment)
	}

	subject := singleLine(truncate(msg.Subject, MaxSubjectLength))
	body := truncate(msg.TextBody, MaxBodyLength)
	filename := SanitizeFilename(msg.Attachment.Filename)
	contentType := msg.Attachment.ContentType
	if contentType == "" {
		contentType = attachmentContentType(filename)
	}

	sum := digest(msg.From, msg.To, subject, body, filename, msg.Attachment.Content)

	var h gomail.Header
	h.SetDate(b.clock.Now())
	h.Set("From", formatSender(msg.FromName, msg.From))
	h.Set("To", msg.To)
	h.SetSubject(subject)
	h.SetMessageID(sum[:32] + "@" + domainOf(msg.From))
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/mixed", map[string]string{"boundary": "gosend-" + sum[:28]})

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, err
	}

	if err := writeTextPart(w, body); err != nil {
		return nil, err
	}

	if err := writeAttachmentPart(w, filename, contentType, msg.Attachment.Content); err != nil {
		return nil, newError(ErrAttachment, "attach", err)
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return &Outbound{From: msg.From, To: msg.To, Data: buf.Bytes()}, nil
}

func writeTextPart(w *message.Writer, body string) error {
	var h message.Header
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}

	return pw.Close()
}

func writeAttachmentPart(w *message.Writer, filename, contentType string, content []byte) error {
	var h message.Header
	h.SetContentType(contentType, map[string]string{"name": filename})
	h.SetContentDisposition("attachment", map[string]string{"filename": filename})
	h.Set("Content-Transfer-Encoding", "base64")

	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(content); err != nil {
		return err
	}

	return pw.Close()
}

// SanitizeFilename reduces name to a safe ASCII base name.
//
// Directory components are dropped, whitespace runs become underscores, and
// anything outside [A-Za-z0-9_.-] is removed. An empty result falls back to
// "attachment".
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return ' '
		case r > unicode.MaxASCII:
			return -1
		default:
			return r
		}
	}, name)

	name = strings.Join(strings.Fields(name), "_")
	name = reUnsafeFilename.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		return defaultAttachmentName
	}

	return name
}

func attachmentContentType(filename string) string {
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}

func formatSender(name, address string) string {
	name = strings.TrimSpace(singleLine(name))
	if name == "" {
		return address
	}

	return (&netmail.Address{Name: name, Address: address}).String()
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

func digest(parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			h.Write([]byte(v))
		case []byte:
			h.Write(v)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
}
