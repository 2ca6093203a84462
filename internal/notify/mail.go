// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package notify delivers the digest by email: a plain-text summary body with
// the Markdown digest attached, sent over STARTTLS-encrypted SMTP.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// Mailer sends one message with a single file attachment. Ready reports
// whether Send has what it needs, without contacting the server.
type Mailer interface {
	Ready() error
	Send(ctx context.Context, subject, body, attachmentPath string) error
}

// Message is a fully specified outgoing email.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	Filename   string
	Attachment []byte
	Date       time.Time
	// Boundary fixes the multipart boundary; empty picks a random one.
	Boundary string
}

// Compose renders m as an RFC 5322 multipart/mixed message with a UTF-8
// text/plain part and one base64 application/octet-stream attachment.
func Compose(m Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if m.Boundary != "" {
		if err := mw.SetBoundary(m.Boundary); err != nil {
			return nil, fmt.Errorf("setting boundary: %w", err)
		}
	}

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", `text/plain; charset="utf-8"`)
	textHeader.Set("Content-Transfer-Encoding", "base64")
	tw, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if err := writeBase64(tw, []byte(m.Body)); err != nil {
		return nil, fmt.Errorf("writing text part: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", "application/octet-stream")
	fileHeader.Set("Content-Transfer-Encoding", "base64")
	fileHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": m.Filename}))
	aw, err := mw.CreatePart(fileHeader)
	if err != nil {
		return nil, fmt.Errorf("creating attachment part: %w", err)
	}
	if err := writeBase64(aw, m.Attachment); err != nil {
		return nil, fmt.Errorf("writing attachment part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", m.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	if !m.Date.IsZero() {
		fmt.Fprintf(&msg, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	}
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()}))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76-character CRLF lines.
func writeBase64(w io.Writer, data []byte) error {
	const lineLen = 76
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > lineLen {
		if _, err := w.Write([]byte(enc[:lineLen] + "\r\n")); err != nil {
			return err
		}
		enc = enc[lineLen:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}

// SMTPMailer delivers mail through an authenticated STARTTLS session.
type SMTPMailer struct {
	cfg types.SMTPConfig

	// Now stamps the Date header. Defaults to time.Now.
	Now func() time.Time

	// TLSConfig overrides the STARTTLS client config. ServerName defaults to
	// the configured host.
	TLSConfig *tls.Config
}

// NewSMTPMailer returns a mailer for cfg. Credentials are checked by Ready
// so runs that never send (dry runs) do not need them.
func NewSMTPMailer(cfg types.SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{cfg: cfg, Now: time.Now}
}

// Send reads the attachment, composes the message, and delivers it to the
// configured recipient. Failures are returned, never swallowed.
func (s *SMTPMailer) Send(ctx context.Context, subject, body, attachmentPath string) error {
	if err := s.Ready(); err != nil {
		return err
	}

	data, err := os.ReadFile(attachmentPath)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}

	msg, err := Compose(Message{
		From:       s.cfg.Sender,
		To:         s.cfg.Recipient,
		Subject:    subject,
		Body:       body,
		Filename:   filepath.Base(attachmentPath),
		Attachment: data,
		Date:       s.Now(),
	})
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("%w: sending mail via %s: %v", types.ErrNetwork, s.cfg.Host, err)
	}
	return nil
}

// Ready returns ErrConfiguration when the server or credentials are missing.
func (s *SMTPMailer) Ready() error {
	if s.cfg.Host == "" || s.cfg.Port <= 0 {
		return fmt.Errorf("%w: smtp host and port are required", types.ErrConfiguration)
	}
	if s.cfg.Sender == "" || s.cfg.Password == "" || s.cfg.Recipient == "" {
		return fmt.Errorf("%w: email sender, password, and recipient are required", types.ErrConfiguration)
	}
	return nil
}

func (s *SMTPMailer) tlsConfig() *tls.Config {
	if s.TLSConfig == nil {
		return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	}
	cfg := s.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = s.cfg.Host
	}
	return cfg
}

func (s *SMTPMailer) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server does not offer STARTTLS")
	}
	if err := c.StartTLS(s.tlsConfig()); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := c.Auth(smtp.PlainAuth("", s.cfg.Sender, s.cfg.Password, s.cfg.Host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(s.cfg.Sender); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(s.cfg.Recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return c.Quit()
}
