// Package notification delivers verification codes to phone numbers.
package notification

import (
	"context"
	"fmt"
	"sync"

	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

// Sender delivers a code to a phone number. Implementations must be safe
// for concurrent use.
type Sender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// Message is the text delivered to the phone.
func Message(code string) string {
	return fmt.Sprintf("Your verification code is: %s. Valid for 10 minutes.", code)
}

// maxRememberedCodes bounds LogSender's memory; the oldest phone is
// forgotten first.
const maxRememberedCodes = 1024

// LogSender writes deliveries to the log instead of a carrier and remembers
// the last code for the most recent phones. It is the development transport.
type LogSender struct {
	logger      *zap.Logger
	includeCode bool

	mu    sync.RWMutex
	codes map[string]string
	order []string
	limit int
}

// NewLogSender creates a LogSender. includeCode controls whether the code
// itself reaches the log; keep it off in production.
func NewLogSender(logger *zap.Logger, includeCode bool) *LogSender {
	return &LogSender{
		logger:      logger,
		includeCode: includeCode,
		codes:       make(map[string]string),
		limit:       maxRememberedCodes,
	}
}

func (s *LogSender) Send(ctx context.Context, phoneNumber, code string) error {
	s.remember(phoneNumber, code)

	fields := []zap.Field{util.Phone("phone_number", phoneNumber)}
	if s.includeCode {
		fields = append(fields, util.String("code", code))
	}
	s.logger.Info("Verification code delivered to log", fields...)
	return nil
}

func (s *LogSender) remember(phoneNumber, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[phoneNumber]; !ok {
		if len(s.order) >= s.limit {
			delete(s.codes, s.order[0])
			s.order = s.order[1:]
		}
		s.order = append(s.order, phoneNumber)
	}
	s.codes[phoneNumber] = code
}

// LastCode returns the most recent code sent to phoneNumber.
func (s *LogSender) LastCode(phoneNumber string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.codes[phoneNumber]
	return code, ok
}
