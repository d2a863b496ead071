package logformatter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type BackupLogFormatter struct {
	// TimeLayout defaults to time.RFC3339Nano
	TimeLayout string
}

func (f *BackupLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {

	var (
		out, server, phase string
		s                  []string
	)

	for k, v := range entry.Data {
		switch k {
		case "server":
			server = fmt.Sprintf("%s", v)
		case "phase":
			phase = fmt.Sprintf("%s", v)
		default:
			s = append(s, fmt.Sprintf("%s: %v", k, v))
		}
	}
	sort.Strings(s)

	layout := f.TimeLayout
	if layout == "" {
		layout = time.RFC3339Nano
	}

	out = fmt.Sprintf("[%s]", entry.Time.Format(layout))
	if server != "" {
		out += fmt.Sprintf("[%s]", server)
	}
	if phase != "" {
		out += fmt.Sprintf("[%s]", phase)
	}
	out += fmt.Sprintf(" %s: %s", strings.ToUpper(entry.Level.String()), entry.Message)
	if len(s) > 0 {
		out += fmt.Sprintf(" (%s)\n", strings.Join(s, ", "))
	} else {
		out += "\n"
	}

	return []byte(out), nil
}
