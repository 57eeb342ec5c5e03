package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"mathchrono-quiz-service/internal/domain"
	"github.com/wneessen/go-mail"
)

var resultMailTmpl = template.Must(template.New("result").Parse(`<h2>Quiz Result Submitted</h2>
<p><strong>Team Name:</strong> {{.TeamName}}</p>
<p><strong>Participant ID:</strong> {{.ParticipantID}}</p>
<p><strong>Grade:</strong> {{.Grade}}</p>
<p><strong>Score:</strong> {{.Score}}</p>
<p><em>Submitted on {{.SubmittedAt.Format "2006-01-02 15:04:05 MST"}}</em></p>
`))

// Sender delivers prepared messages; *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailConfig holds SMTP settings for the instructor mail.
type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Instructor string
}

// Mailer emails every stored result to the instructor. A go-mail client holds
// one SMTP connection, so sends are serialized through slot.
type Mailer struct {
	sender     Sender
	from       string
	instructor string
	slot       chan struct{}
}

// NewSMTPMailer builds a Mailer backed by an SMTP client.
func NewSMTPMailer(cfg MailConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewMailer(client, from, cfg.Instructor), nil
}

func NewMailer(sender Sender, from, instructor string) *Mailer {
	return &Mailer{sender: sender, from: from, instructor: instructor, slot: make(chan struct{}, 1)}
}

func (m *Mailer) NotifyResult(ctx context.Context, result domain.Result) error {
	msg, err := m.message(result)
	if err != nil {
		return err
	}
	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("send result mail: %w", ctx.Err())
	}
	defer func() { <-m.slot }()
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send result mail: %w", err)
	}
	return nil
}

func (m *Mailer) message(result domain.Result) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat("MathChrono Quiz", m.from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(m.instructor); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject("Quiz Result - " + result.TeamName)

	var body bytes.Buffer
	if err := resultMailTmpl.Execute(&body, result); err != nil {
		return nil, fmt.Errorf("render mail: %w", err)
	}
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	return msg, nil
}
