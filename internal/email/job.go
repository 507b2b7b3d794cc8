package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindSignupOTP  Kind = "signup_otp"
	KindResetOTP   Kind = "reset_otp"
	KindWelcome    Kind = "welcome"
	KindAccountBye Kind = "account_deleted"
)

// Job is the unit placed on the mail queue.
type Job struct {
	Kind    Kind      `json:"kind"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Queued  time.Time `json:"queuedAt"`
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.To) == "" {
		return errors.New("mail job without recipient")
	}
	if j.Subject == "" || j.Body == "" {
		return errors.New("mail job without content")
	}
	return nil
}

// Mailer hands a job to whatever delivers it.
type Mailer interface {
	Enqueue(ctx context.Context, job Job) error
}

// OTPJob mails a one-time code. link, when set, points at the page where the
// code is entered.
func OTPJob(kind Kind, to, code, link string, ttl time.Duration) Job {
	subject := "Your Investocrafy verification code"
	intro := "Use this code to verify your email address."
	if kind == KindResetOTP {
		subject = "Your Investocrafy password reset code"
		intro = "Use this code to reset your password."
	}
	body := fmt.Sprintf("Hello,\n\n%s\n\n    %s\n\n", intro, code)
	if link != "" {
		body += "Enter it at " + link + "\n\n"
	}
	body += fmt.Sprintf("The code expires in %d minutes. If you did not request it, you can ignore this message.\n\nInvestocrafy\n",
		int(ttl.Minutes()))
	return Job{Kind: kind, To: to, Subject: subject, Body: body, Queued: time.Now()}
}

func WelcomeJob(to, name string) Job {
	body := "Hello " + name + ",\n\n" +
		"Your Investocrafy account is verified and ready.\n\n" +
		"If you did not create this account, please contact our support immediately.\n\n" +
		"Investocrafy\n"
	return Job{Kind: KindWelcome, To: to, Subject: "Welcome to Investocrafy", Body: body, Queued: time.Now()}
}

func AccountDeletedJob(to string) Job {
	body := "Hello,\n\nYour Investocrafy account and chat history have been deleted.\n\nInvestocrafy\n"
	return Job{Kind: KindAccountBye, To: to, Subject: "Your Investocrafy account was deleted", Body: body, Queued: time.Now()}
}

// DirectMailer sends in a background goroutine without a queue. Used when no
// broker is configured.
type DirectMailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewDirectMailer(cfg SMTPConfig, log zerolog.Logger) *DirectMailer {
	return &DirectMailer{cfg: cfg, log: log}
}

func (m *DirectMailer) Enqueue(_ context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	go func() {
		if err := SendText(m.cfg, job.To, job.Subject, job.Body); err != nil {
			m.log.Warn().Err(err).Str("kind", string(job.Kind)).Msg("direct mail failed")
		}
	}()
	return nil
}
