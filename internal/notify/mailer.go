// Package notify emails the operator about newly accepted projects. Sends
// are best effort: one attempt per record, no retries, and incomplete
// credentials degrade the mailer to log-only instead of failing startup.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"fundwatch/internal/scrape"
)

// Config carries the outbound mail settings. Authentication is either a
// plain password or a Gmail OAuth2 credential set (client id, client secret,
// refresh token); when Account, To, or both auth options are missing the
// mailer only logs.
type Config struct {
	Host         string
	Port         int
	Account      string
	Password     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	To           string
	// ProjectBaseURL prefixes the record's relative detail link in the
	// message body.
	ProjectBaseURL string
}

// Mailer sends one message per accepted project.
type Mailer struct {
	cfg     Config
	logger  *zap.Logger
	tokens  oauth2.TokenSource
	enabled bool
}

// New constructs a Mailer from cfg.
func New(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{cfg: cfg, logger: logger}
	switch {
	case cfg.Account == "" || cfg.To == "":
	case cfg.Password != "":
		m.enabled = true
	case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
		}
		m.tokens = oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
		m.enabled = true
	}
	if !m.enabled {
		logger.Warn("mail credentials incomplete, notifications will be logged only")
	}
	return m
}

// Enabled reports whether the mailer will actually send.
func (m *Mailer) Enabled() bool {
	return m.enabled
}

// Notify makes exactly one send attempt for record. In log-only mode it
// records the project and reports success.
func (m *Mailer) Notify(_ context.Context, record scrape.ProjectRecord) error {
	if !m.enabled {
		m.logger.Info("new project (mail disabled)",
			zap.String("id", record.ID),
			zap.String("title", record.Title),
			zap.Float64("adjusted_yield", record.AdjustedYield),
		)
		return nil
	}

	auth, err := m.smtpAuth()
	if err != nil {
		return fmt.Errorf("mail auth: %w", err)
	}

	msg := email.NewEmail()
	msg.From = m.cfg.Account
	msg.To = []string{m.cfg.To}
	msg.Subject = "Geldvoorelkaar.nl project: " + record.Title
	msg.HTML = []byte(renderBody(record, m.cfg.ProjectBaseURL))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := msg.Send(addr, auth); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Info("notification sent",
		zap.String("id", record.ID),
		zap.String("title", record.Title),
	)
	return nil
}

func (m *Mailer) smtpAuth() (smtp.Auth, error) {
	if m.cfg.Password != "" {
		return smtp.PlainAuth("", m.cfg.Account, m.cfg.Password, m.cfg.Host), nil
	}
	tok, err := m.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return xoauth2Auth{user: m.cfg.Account, token: tok.AccessToken}, nil
}

// renderBody formats the notification mail in the operator's language, one
// fact per line with a link to the project detail page.
func renderBody(record scrape.ProjectRecord, baseURL string) string {
	var lines []string
	if record.Link != "" {
		link := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(record.Link, "/")
		lines = append(lines, fmt.Sprintf("<a href=%q>Naar het project %s</a><br>", link, record.Title))
	}
	lines = append(lines,
		"Project: "+record.Title,
		"Classificatie: "+record.Classification,
		"Rating: "+record.Rating,
	)
	if record.CreditScore != nil {
		lines = append(lines, "Creditsafe: "+formatFloat(*record.CreditScore))
	}
	lines = append(lines,
		"Rente: "+formatFloat(record.Interest)+"%",
		"Rendement: "+formatFloat(record.AdjustedYield)+"%",
		fmt.Sprintf("Looptijd: %d maanden", record.TermMonths),
	)
	return strings.Join(lines, "<br>")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// xoauth2Auth implements the SASL XOAUTH2 initial response used by Gmail.
type xoauth2Auth struct {
	user  string
	token string
}

// Start begins the XOAUTH2 exchange.
func (a xoauth2Auth) Start(*smtp.ServerInfo) (string, []byte, error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(resp), nil
}

// Next replies to a server challenge. On failure the server sends a JSON
// error blob; an empty line tells it to finish so Send surfaces the SMTP
// error instead of hanging.
func (a xoauth2Auth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return []byte(""), nil
	}
	return nil, nil
}
