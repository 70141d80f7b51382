package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Dan9191/balance-planner/internal/config"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendRunSummary mails the outcome of a completed run to the configured recipient
func (s *Sender) SendRunSummary(run *models.RunSummary, warnings []string) error {
	e := s.runSummary(run, warnings)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send run summary to %s: %v", s.cfg.NotifyEmail, err)
		return fmt.Errorf("failed to send run summary: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.NotifyEmail, e.Subject)
	return nil
}

func (s *Sender) runSummary(run *models.RunSummary, warnings []string) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.NotifyEmail}
	if run.Feasible {
		e.Subject = fmt.Sprintf("Balance plan %s completed", run.Kind)
	} else {
		e.Subject = fmt.Sprintf("Balance plan %s needs attention", run.Kind)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Run %s for session %s finished at %s.\n\n", run.ID, run.SessionID, run.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&body,
		"Starting balance: %s\n"+
			"Target balance: %s\n"+
			"Final balance: %s\n"+
			"Horizon: %d days\n"+
			"Edits pinned: %d\n"+
			"Generations: %d (%s)\n",
		run.Config.StartingBalance.StringFixed(2), run.Config.TargetBalance.StringFixed(2), run.FinalBalance.StringFixed(2),
		run.Config.Horizon(), run.EditCount, run.Generations, run.Duration,
	)
	if len(warnings) > 0 {
		body.WriteString("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(&body, "- %s\n", w)
		}
	}
	body.WriteString("\nBalance Planner")
	e.Text = []byte(body.String())
	return e
}
