package services

import (
	"log"

	"github.com/sirupsen/logrus"
)

// Notifier delivers squad reminder messages.
type Notifier interface {
	SendMessage(phoneNumber, message string) error
}

// MockNotifier for development - logs to console instead of sending real SMS
type MockNotifier struct {
	logger *logrus.Logger
}

func NewMockNotifier(logger *logrus.Logger) *MockNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &MockNotifier{logger: logger}
}

func (s *MockNotifier) SendMessage(phoneNumber, message string) error {
	log.Printf("📨 MOCK SMS: Send message to %s", phoneNumber)
	s.logger.WithField("phone", phoneNumber).Infof("Mock SMS body:\n%s", message)
	return nil
}
