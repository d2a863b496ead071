package mailer

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// localMail passes messages to the local MTA
type localMail struct{}

func (localMail) Send(_ string, _ []string, msg io.WriterTo) error {

	var in, stderr bytes.Buffer
	if _, err := msg.WriteTo(&in); err != nil {
		return err
	}

	cmd := exec.Command("sendmail", "-t", "-oi")
	cmd.Stdin = &in
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (localMail) Close() error {
	return nil
}
