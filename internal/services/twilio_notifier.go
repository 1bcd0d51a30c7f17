package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioNotifier implements Notifier using the Twilio API
type TwilioNotifier struct {
	client      *twilio.RestClient
	fromNumber  string
	logger      *logrus.Logger
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *SMSRateLimiter
}

// NewTwilioNotifier creates a new Twilio-backed notifier
func NewTwilioNotifier(accountSID, authToken, fromNumber string, rateLimiter *SMSRateLimiter, logger *logrus.Logger) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "twilio-sms",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from,
				"to_state":   to,
			}).Warn("SMS circuit breaker state changed")
		},
	})

	return &TwilioNotifier{
		client:      client,
		fromNumber:  fromNumber,
		logger:      logger,
		breaker:     cb,
		rateLimiter: rateLimiter,
	}
}

// SendMessage sends an SMS message via Twilio
func (s *TwilioNotifier) SendMessage(phoneNumber, message string) error {
	normalized, err := s.normalizePhoneNumber(phoneNumber)
	if err != nil {
		return fmt.Errorf("invalid phone number format: %w", err)
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(normalized); err != nil {
			s.logger.Warnf("Twilio SMS: rate limited for %s", normalized)
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(normalized)
		params.SetFrom(s.fromNumber)
		params.SetBody(message)
		return s.client.Api.CreateMessage(params)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("SMS service temporarily unavailable")
		}
		s.logger.Errorf("Twilio SMS: API error - %v", err)
		return s.mapTwilioError(err)
	}

	if resp, ok := result.(*twilioApi.ApiV2010Message); ok && resp.Sid != nil {
		s.logger.WithField("sid", *resp.Sid).Info("Twilio SMS sent")
	} else {
		s.logger.Info("Twilio SMS sent")
	}

	return nil
}

// normalizePhoneNumber ensures the number is in E.164 format. Bare UK mobile
// numbers (07xxxxxxxxx) get the +44 prefix.
func (s *TwilioNotifier) normalizePhoneNumber(phone string) (string, error) {
	re := regexp.MustCompile(`[^\d+]`)
	cleaned := re.ReplaceAllString(phone, "")

	if !strings.HasPrefix(cleaned, "+") {
		if regexp.MustCompile(`^0\d{10}$`).MatchString(cleaned) {
			cleaned = "+44" + cleaned[1:]
		} else {
			return "", fmt.Errorf("invalid phone number format")
		}
	}

	// Validate E.164 format
	if !regexp.MustCompile(`^\+[1-9]\d{1,14}$`).MatchString(cleaned) {
		return "", fmt.Errorf("invalid phone number format")
	}

	return cleaned, nil
}

// mapTwilioError maps Twilio-specific errors to user-friendly messages
func (s *TwilioNotifier) mapTwilioError(err error) error {
	errStr := err.Error()

	switch {
	case regexp.MustCompile(`(?i)invalid.*phone.*number`).MatchString(errStr):
		return fmt.Errorf("invalid phone number")
	case regexp.MustCompile(`(?i)unverified.*number`).MatchString(errStr):
		return fmt.Errorf("phone number not verified for trial account")
	case regexp.MustCompile(`(?i)insufficient.*funds`).MatchString(errStr):
		return fmt.Errorf("SMS service temporarily unavailable")
	case regexp.MustCompile(`(?i)rate.*limit`).MatchString(errStr):
		return fmt.Errorf("too many SMS requests, please try again later")
	default:
		return fmt.Errorf("failed to send SMS: %w", err)
	}
}

// GetStats returns circuit breaker and service statistics
func (s *TwilioNotifier) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"circuit_breaker_state": s.breaker.State().String(),
		"service_type":          "twilio",
	}
}
