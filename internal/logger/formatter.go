package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// CLIFormatter renders operational logs as a compact single line:
// LEVEL: message [key=value ...], with colored levels on terminals.
type CLIFormatter struct {
	EnableColors  bool
	ShowTimestamp bool
}

// NewCLIFormatter creates a formatter, enabling colors when out is a
// terminal.
func NewCLIFormatter(out io.Writer) *CLIFormatter {
	colors := false
	if f, ok := out.(*os.File); ok {
		colors = isatty.IsTerminal(f.Fd())
	}
	return &CLIFormatter{EnableColors: colors}
}

// Format implements logrus.Formatter.
func (f *CLIFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if f.ShowTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	levelColor := ""
	resetColor := ""
	if f.EnableColors {
		switch entry.Level {
		case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
			levelColor = "\033[31m" // Red
		case logrus.WarnLevel:
			levelColor = "\033[33m" // Yellow
		case logrus.InfoLevel:
			levelColor = "\033[36m" // Cyan
		case logrus.DebugLevel:
			levelColor = "\033[37m" // White
		}
		resetColor = "\033[0m"
	}

	b.WriteString(levelColor)
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString(resetColor)
	b.WriteString(": ")
	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// userFormatter prints only the message, keeping stdout clean for users.
type userFormatter struct{}

func (f *userFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
