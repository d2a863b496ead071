package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"backup-master/modules/backup"
)

const DefaultSmtpTimeout = 10 * time.Second

type MailOpts struct {
	Enabled      bool
	SmtpServer   string
	SmtpPort     int
	SmtpUser     string
	SmtpPassword string
	SmtpTimeout  time.Duration
	Recipients   []string
	MessageLevel logrus.Level
	ServerName   string
}

type Mailer struct {
	opts MailOpts
	log  logrus.FieldLogger
	dial func() (gomail.SendCloser, error)
}

// Init checks SMTP server availability if mail is enabled
func Init(opts MailOpts, log logrus.FieldLogger) (*Mailer, error) {

	if opts.SmtpTimeout <= 0 {
		opts.SmtpTimeout = DefaultSmtpTimeout
	}

	m := &Mailer{opts: opts, log: log}
	m.dial = m.smtpDial

	if !opts.Enabled {
		return m, nil
	}

	if opts.SmtpServer != "" {
		sc, err := m.dial()
		if err != nil {
			return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
		}
		_ = sc.Close()
	}

	return m, nil
}

func (m *Mailer) smtpDial() (gomail.SendCloser, error) {

	if m.opts.SmtpServer == "" {
		return localMail{}, nil
	}

	type res struct {
		sc  gomail.SendCloser
		err error
	}
	ch := make(chan res, 1)

	go func() {
		d := gomail.NewDialer(m.opts.SmtpServer, m.opts.SmtpPort, m.opts.SmtpUser, m.opts.SmtpPassword)
		sc, err := d.Dial()
		ch <- res{sc, err}
	}()

	select {
	case r := <-ch:
		return r.sc, r.err
	case <-time.After(m.opts.SmtpTimeout):
		return nil, fmt.Errorf("timed out after %s", m.opts.SmtpTimeout)
	}
}

// Level maps the run result onto notification severity
func Level(out backup.Outcome) logrus.Level {
	switch {
	case out.State == backup.Failed:
		return logrus.ErrorLevel
	case out.State == backup.Stopped, out.ItemErrors != nil, out.ArchiveErr != nil:
		return logrus.WarnLevel
	}
	return logrus.InfoLevel
}

// Send sends notification about finished backup via Email
func (m *Mailer) Send(out backup.Outcome) error {

	lvl := Level(out)
	if !m.opts.Enabled || lvl > m.opts.MessageLevel {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.sender())
	msg.SetHeader("To", m.opts.Recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] Backup-master notification: server %q, backup of %q %s",
		strings.ToUpper(lvl.String()), m.opts.ServerName, out.Server, out.State))
	msg.SetBody("text/plain", getMailBody(out))

	sc, err := m.dial()
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	defer func() { _ = sc.Close() }()

	if err = gomail.Send(sc, msg); err != nil {
		return fmt.Errorf("could not send email: %w", err)
	}

	return nil
}

// Handlers returns observer that mails the outcome of every run
func (m *Mailer) Handlers() backup.Handlers {
	return backup.Handlers{
		OnComplete: func(out backup.Outcome) {
			if err := m.Send(out); err != nil && m.log != nil {
				m.log.WithField("server", out.Server).Error(err)
			}
		},
	}
}

func (m *Mailer) sender() string {
	if m.opts.SmtpUser != "" {
		return m.opts.SmtpUser
	}
	return "backup-master@localhost"
}

func getMailBody(out backup.Outcome) string {

	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", out.Report)
	fmt.Fprintf(&b, "Server:       %s\n", out.Server)
	fmt.Fprintf(&b, "Mode:         %s\n", out.Mode)
	fmt.Fprintf(&b, "State:        %s\n", out.State)
	fmt.Fprintf(&b, "Started:      %s\n", out.Started.Format(time.RFC1123))
	fmt.Fprintf(&b, "Finished:     %s\n", out.Finished.Format(time.RFC1123))
	fmt.Fprintf(&b, "Files:        %d of %d\n", out.FilesTransferred, out.TotalFilesSelected)
	fmt.Fprintf(&b, "Transferred:  %d bytes\n", out.BytesTransferred)
	if len(out.Dumps) > 0 {
		fmt.Fprintf(&b, "Dumps:        %s\n", strings.Join(out.Dumps, ", "))
	}
	if out.ArchivePath != "" {
		fmt.Fprintf(&b, "Archive:      %s\n", out.ArchivePath)
	}
	if out.ArchiveErr != nil {
		fmt.Fprintf(&b, "Kept in:      %s\n", out.TargetRoot)
		fmt.Fprintf(&b, "\nArchive error: %s\n", out.ArchiveErr)
	}
	if out.Err != nil {
		fmt.Fprintf(&b, "\nError: %s\n", out.Err)
	}
	if out.ItemErrors != nil {
		fmt.Fprintf(&b, "\nSkipped items:\n")
		for _, e := range out.ItemErrors.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}

	return b.String()
}
