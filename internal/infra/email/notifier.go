package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, targetKey, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	msg := buildMessage(n.from, userEmail, jobID, targetKey, errorMsg)
	if err := n.send(addr, nil, n.from, []string{userEmail}, msg); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

func buildMessage(from, to, jobID, targetKey, errorMsg string) []byte {
	subject := fmt.Sprintf("roop - Face swap failed [Job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your face swap job could not be completed.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Target: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Check that the source image shows a single clear face and submit the job again.\r\n\r\n"+
			"-- roop worker",
		jobID, targetKey, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
