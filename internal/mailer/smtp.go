package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	// ImplicitTLS dials TLS directly (port 465). Otherwise STARTTLS is used
	// whenever the server offers it.
	ImplicitTLS bool
}

type SMTPSender struct {
	conf SMTPConfig
	from mail.Address
	tls  *tls.Config
}

func NewSMTPSender(conf SMTPConfig) *SMTPSender {
	from := conf.FromAddress
	if from == "" {
		from = conf.Username
	}
	return &SMTPSender{
		conf: conf,
		from: mail.Address{Name: conf.FromName, Address: from},
		tls:  &tls.Config{ServerName: conf.Host, MinVersion: tls.VersionTLS12},
	}
}

func (s *SMTPSender) SendMail(ctx context.Context, to, subject, html string) error {
	addr := net.JoinHostPort(s.conf.Host, strconv.Itoa(s.conf.Port))

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer raw.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	// a cancelled context unblocks any pending read or write
	stop := context.AfterFunc(ctx, func() { _ = raw.SetDeadline(time.Now()) })
	defer stop()

	conn := raw
	if s.conf.ImplicitTLS {
		conn = tls.Client(conn, s.tls)
	}

	client, err := smtp.NewClient(conn, s.conf.Host)
	if err != nil {
		return s.wrap(ctx, err)
	}
	defer client.Close()

	if !s.conf.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tls); err != nil {
				return s.wrap(ctx, err)
			}
		}
	}

	if s.conf.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.conf.Username, s.conf.Password, s.conf.Host)
			if err := client.Auth(auth); err != nil {
				return s.wrap(ctx, err)
			}
		}
	}

	if err := client.Mail(s.from.Address); err != nil {
		return s.wrap(ctx, err)
	}
	if err := client.Rcpt(to); err != nil {
		return s.wrap(ctx, err)
	}

	w, err := client.Data()
	if err != nil {
		return s.wrap(ctx, err)
	}
	if _, err := w.Write(s.buildMessage(to, subject, html)); err != nil {
		return s.wrap(ctx, err)
	}
	if err := w.Close(); err != nil {
		return s.wrap(ctx, err)
	}

	return s.wrap(ctx, client.Quit())
}

// wrap prefers the context error so timeouts read as timeouts rather than
// as i/o deadline errors.
func (s *SMTPSender) wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp: %w", ctxErr)
	}
	return fmt.Errorf("smtp: %w", err)
}

func (s *SMTPSender) buildMessage(to, subject, html string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	header("From", s.from.String())
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), s.conf.Host))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")
	buf.WriteString(html)
	return buf.Bytes()
}
