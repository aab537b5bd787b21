package mail

import (
	"fmt"
	"time"

	"github.com/launchkit/launchkit/internal/pkg/env"
)

// BillingMailer sends the transactional billing mails over SMTP. It satisfies
// the billing package's Mailer interface.
type BillingMailer struct {
	appName string
}

func NewBillingMailer() *BillingMailer {
	return &BillingMailer{
		appName: env.GetEnv("APP_NAME", "LaunchKit"),
	}
}

// SendWelcome greets a freshly registered user.
func (m *BillingMailer) SendWelcome(toEmail, name string) error {
	subject := fmt.Sprintf("Welcome to %s", m.appName)
	body := fmt.Sprintf(`<h2>Welcome, %s!</h2>
<p>Your %s account is ready. Head over to your dashboard to get started.</p>`, name, m.appName)
	return SendMail(toEmail, subject, body)
}

func (m *BillingMailer) SendPurchaseSuccessful(toEmail, name string, creditsAdded int) error {
	subject := "Your credit purchase was successful"
	body := fmt.Sprintf(`<h2>Thanks, %s!</h2>
<p>We added <strong>%d credits</strong> to your account. They are available right away and never expire.</p>`, name, creditsAdded)
	return SendMail(toEmail, subject, body)
}

func (m *BillingMailer) SendSubscriptionCancelled(toEmail, name string, accessUntil *time.Time) error {
	subject := "Your subscription has been cancelled"
	until := "the end of your current billing period"
	if accessUntil != nil {
		until = accessUntil.Format("January 2, 2006")
	}
	body := fmt.Sprintf(`<h2>Sorry to see you go, %s.</h2>
<p>Your subscription has been cancelled. You keep full access until %s.</p>`, name, until)
	return SendMail(toEmail, subject, body)
}

func (m *BillingMailer) SendTrialEnding(toEmail, name string, trialEnd *time.Time) error {
	subject := "Your trial is ending soon"
	when := "in a few days"
	if trialEnd != nil {
		when = "on " + trialEnd.Format("January 2, 2006")
	}
	body := fmt.Sprintf(`<h2>Heads up, %s!</h2>
<p>Your trial ends %s. Pick a plan to keep your access uninterrupted.</p>`, name, when)
	return SendMail(toEmail, subject, body)
}
