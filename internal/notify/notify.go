package notify

import (
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/storage"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Sink receives copy-event notifications. Emit is fire-and-forget: delivery
// failure must never fail the copy event, so implementations log and swallow
// their own errors.
type Sink interface {
	Emit(kind Kind, title, message string)
}

// Multi fans one notification out to several sinks.
type Multi []Sink

func (m Multi) Emit(kind Kind, title, message string) {
	for _, s := range m {
		s.Emit(kind, title, message)
	}
}

// StoreSink persists notifications as rows the dashboard reads.
type StoreSink struct {
	repo   *storage.Repository
	logger *logger.Logger
}

func NewStoreSink(repo *storage.Repository, log *logger.Logger) *StoreSink {
	return &StoreSink{repo: repo, logger: log}
}

func (s *StoreSink) Emit(kind Kind, title, message string) {
	n := &storage.Notification{
		Type:    string(kind),
		Title:   title,
		Message: message,
	}
	if err := s.repo.SaveNotification(n); err != nil {
		s.logger.Error("save notification", "title", title, "error", err)
	}
}
