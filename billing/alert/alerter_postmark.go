package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Config holds the Postmark credentials for email alerts.
type Config struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"ALERT_SENDER_EMAIL" envDefault:"usage@ticketsmith.io"`
}

var (
	ErrInvalidConfig     = errors.New("alert: invalid postmark config")
	ErrFailedToSendEmail = errors.New("alert: failed to send email")
)

// PostmarkAlerter emails threshold notices through Postmark.
type PostmarkAlerter struct {
	client  *postmark.Client
	sender  string
	printer *message.Printer
}

// NewPostmarkAlerter validates the config and returns an email-backed
// Alerter.
func NewPostmarkAlerter(cfg Config) (*PostmarkAlerter, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", ErrInvalidConfig)
	}
	if cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: AccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}

	return &PostmarkAlerter{
		client:  postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		sender:  cfg.SenderEmail,
		printer: message.NewPrinter(language.English),
	}, nil
}

func (a *PostmarkAlerter) Alert(ctx context.Context, notice Notice) error {
	if notice.Recipient == "" {
		return fmt.Errorf("%w: notice has no recipient", ErrFailedToSendEmail)
	}

	resp, err := a.client.SendEmail(ctx, postmark.Email{
		From:     a.sender,
		To:       notice.Recipient,
		Subject:  a.subject(notice),
		Tag:      "usage-alert",
		HTMLBody: a.body(notice),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

func (a *PostmarkAlerter) subject(notice Notice) string {
	if notice.Threshold >= 100 {
		return "You've reached your monthly token limit"
	}
	return fmt.Sprintf("You've used %d%% of your monthly tokens", notice.Threshold)
}

func (a *PostmarkAlerter) body(notice Notice) string {
	snap := notice.Snapshot
	return a.printer.Sprintf(
		"<p>Your %s plan has used %d of %d tokens this billing period (%d%%).</p>"+
			"<p>Your limit resets on %s. Upgrade your plan to keep drafting without interruption.</p>",
		snap.PlanName, snap.CurrentUsage, snap.Limit, snap.PercentUsed,
		snap.PeriodEnd.Format("January 2, 2006"),
	)
}
