package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendAccessGranted sends the purchase confirmation with content access
// instructions.
func (s *Service) SendAccessGranted(to, orderID, productName, price, currency string) error {
	subject := fmt.Sprintf("Your purchase is confirmed (order %s)", shortID(orderID))
	body := BuildAccessGrantedBody(orderID, productName, price, currency)
	return s.send(to, subject, body)
}

// SendAccessRevoked notifies the buyer that a refund was processed and
// content access has been removed.
func (s *Service) SendAccessRevoked(to, orderID, productName, amount, currency string) error {
	subject := fmt.Sprintf("Your refund has been processed (order %s)", shortID(orderID))
	body := BuildAccessRevokedBody(orderID, productName, amount, currency)
	return s.send(to, subject, body)
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
