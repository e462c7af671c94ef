package record

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

var fieldnames = []string{
	"conversation_id",
	"condition",
	"invitation_code",
	"participant_stance",
	"user_id",
	"date",
	"hour",
	"content",
	"chatbot_type",
}

// CSVLogger appends rows to per-participant CSV files under a shared
// directory. An exclusive advisory lock scoped to the destination guards
// the header check and the append, so concurrent writers neither interleave
// partial rows nor write the header twice.
//
// There is no idempotence: a retried append after an earlier failure writes
// a duplicate row. Duplicates are accepted as lower severity than loss.
type CSVLogger struct {
	dir         string
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewCSVLogger builds a logger writing under dir. lockTimeout bounds how
// long one append may wait for the destination lock.
func NewCSVLogger(dir string, lockTimeout time.Duration, logger *zap.Logger) *CSVLogger {
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVLogger{
		dir:         dir,
		lockTimeout: lockTimeout,
		logger:      logger.With(zap.String("component", "record_csv")),
	}
}

// Append writes one row. Errors are returned for observability but carry
// enough logged context (the full row) that the missing data can be
// reconstructed from the transcript; callers are expected to continue the
// conversation regardless.
func (l *CSVLogger) Append(ctx context.Context, row Row) error {
	if err := l.append(ctx, row); err != nil {
		l.logger.Error("row append failed",
			zap.String("conversation_id", row.ConversationID),
			zap.String("chatbot_type", row.ChatbotType),
			zap.String("content", row.Content),
			zap.Error(err))
		return err
	}
	return nil
}

func (l *CSVLogger) append(ctx context.Context, row Row) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	dest := l.Destination(row.UserID, row.InvitationCode)
	lock := flock.New(dest + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", dest, err)
	}
	if !locked {
		return fmt.Errorf("lock for %s not acquired within %v", dest, l.lockTimeout)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			l.logger.Warn("lock release failed", zap.String("dest", dest), zap.Error(unlockErr))
		}
	}()

	needHeader := true
	if info, statErr := os.Stat(dest); statErr == nil && info.Size() > 0 {
		needHeader = false
	}

	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", dest, err)
	}
	defer f.Close()

	now := time.Now()
	if row.Date == "" {
		row.Date = now.Format("2006-01-02")
	}
	if row.Hour == "" {
		row.Hour = now.Format("15:04:05")
	}

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(fieldnames); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write([]string{
		row.ConversationID,
		row.Condition,
		row.InvitationCode,
		row.ParticipantStance,
		row.UserID,
		row.Date,
		row.Hour,
		row.Content,
		row.ChatbotType,
	}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", dest, err)
	}
	return nil
}

// Destination computes the CSV path a row for this participant lands in.
func (l *CSVLogger) Destination(userID, invitationCode string) string {
	name := fmt.Sprintf("conversation_%s_%s.csv", sanitize(userID), sanitize(invitationCode))
	return filepath.Join(l.dir, name)
}

// sanitize keeps opaque form-supplied identifiers from escaping the log dir.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, s)
}
