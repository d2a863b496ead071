package ctx

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"backup-master/modules/backend/mailer"
)

var messageLevels = map[string]logrus.Level{
	"err":     logrus.ErrorLevel,
	"error":   logrus.ErrorLevel,
	"warn":    logrus.WarnLevel,
	"warning": logrus.WarnLevel,
	"inf":     logrus.InfoLevel,
	"info":    logrus.InfoLevel,
}

func mailerInit(c confOpts, log logrus.FieldLogger) (*mailer.Mailer, error) {

	// values are checked by validate
	timeout, _ := time.ParseDuration(c.Mail.SmtpTimeout)
	ml, ok := messageLevels[strings.ToLower(c.Mail.MessageLevel)]
	if !ok {
		ml = logrus.ErrorLevel
	}

	return mailer.Init(mailer.MailOpts{
		Enabled:      c.Mail.Enabled,
		SmtpServer:   c.Mail.SmtpServer,
		SmtpPort:     c.Mail.SmtpPort,
		SmtpUser:     c.Mail.SmtpUser,
		SmtpPassword: c.Mail.SmtpPassword,
		SmtpTimeout:  timeout,
		Recipients:   c.Mail.Recipients,
		MessageLevel: ml,
		ServerName:   c.ServerName,
	}, log)
}
