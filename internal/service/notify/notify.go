package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/wneessen/go-mail"

	"github.com/nikhil/saasbase/internal/logger"
)

// Invitation is everything needed to deliver an invitation link.
type Invitation struct {
	Email       string
	Token       string
	TeamID      string
	TeamName    string
	InviterName string
	Role        string
}

type Notifier interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// AcceptURL builds the link an invitee follows to join a team.
func AcceptURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/accept-invite?token=" + url.QueryEscape(token)
}

var invitationBody = template.Must(template.New("invitation").Parse(`Hi,

{{.InviterName}} invited you to join {{.TeamName}} as {{.Role}}.

Accept the invitation within 24 hours:
{{.URL}}

If you were not expecting this email you can ignore it.
`))

type invitationView struct {
	Invitation
	URL string
}

// LogNotifier records invitations in the log instead of sending them.
type LogNotifier struct {
	baseURL string
	log     *logger.Logger
}

func NewLogNotifier(baseURL string, log *logger.Logger) *LogNotifier {
	return &LogNotifier{baseURL: baseURL, log: log.Named("notify")}
}

func (n *LogNotifier) SendInvitation(ctx context.Context, inv Invitation) error {
	n.log.WithContext(ctx).Audit("Invitation link issued",
		"email", inv.Email,
		"team_id", inv.TeamID,
		"url", AcceptURL(n.baseURL, inv.Token),
	)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer delivers invitations over SMTP.
type Mailer struct {
	client  *mail.Client
	from    string
	baseURL string
	log     *logger.Logger
}

func NewMailer(cfg SMTPConfig, baseURL string, log *logger.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From, baseURL: baseURL, log: log.Named("notify")}, nil
}

func (m *Mailer) SendInvitation(ctx context.Context, inv Invitation) error {
	msg, err := buildInvitation(m.from, m.baseURL, inv)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	m.log.WithContext(ctx).Audit("Invitation email sent", "email", inv.Email, "team_id", inv.TeamID)
	return nil
}

func buildInvitation(from, baseURL string, inv Invitation) (*mail.Msg, error) {
	if inv.InviterName == "" {
		inv.InviterName = "A teammate"
	}
	if inv.TeamName == "" {
		inv.TeamName = "a team"
	}
	if inv.Role == "" {
		inv.Role = "member"
	}

	var body bytes.Buffer
	if err := invitationBody.Execute(&body, invitationView{Invitation: inv, URL: AcceptURL(baseURL, inv.Token)}); err != nil {
		return nil, fmt.Errorf("failed to render invitation: %w", err)
	}

	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(inv.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("You have been invited to join %s", inv.TeamName))
	msg.SetBodyString(mail.TypeTextPlain, body.String())
	return msg, nil
}
