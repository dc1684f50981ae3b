package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// fileHook writes every entry to a file writer using a plain text format,
// independent of the console formatter.
type fileHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter logrus.Formatter
}

func newFileHook(w io.Writer) *fileHook {
	return &fileHook{
		writer: w,
		formatter: &logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			TimestampFormat:  timestampFormat,
			DisableQuote:     true,
			QuoteEmptyFields: true,
		},
	}
}

func (h *fileHook) setWriter(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writer = w
}

// Levels returns the levels handled by this hook
func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire formats the entry and writes it to the current file
func (h *fileHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.writer == nil {
		return nil
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
