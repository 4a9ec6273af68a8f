package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendMagicLinkEmail(toEmail, magicLink string, validFor time.Duration) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Sign in to Linea"
	html := fmt.Sprintf(`
		<h2>Sign in to Linea</h2>
		<p>Click the button below to sign in. No password needed.</p>
		<p><a href="%s" style="background-color: #4F46E5; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Sign In</a></p>
		<p>This link expires in %d minutes and can only be used once.</p>
		<p>If you didn't request this, you can safely ignore this email.</p>
	`, magicLink, int(validFor.Minutes()))

	text := fmt.Sprintf("Sign in to Linea: %s\n\nThis link expires in %d minutes and can only be used once.", magicLink, int(validFor.Minutes()))

	return m.sendEmail(toEmail, "", subject, text, html)
}

func (m *MailerSendClient) SendOwnerInviteEmail(toEmail, toName, inviteLink string, validFor time.Duration) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your Linea organizer invitation"
	html := fmt.Sprintf(`
		<h2>Welcome to Linea, %s!</h2>
		<p>You've been set up as an event organizer. Click below to activate your account:</p>
		<p><a href="%s" style="background-color: #4F46E5; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Activate Organizer Account</a></p>
		<p>This link expires in %d minutes and can only be used once.</p>
	`, toName, inviteLink, int(validFor.Minutes()))

	text := fmt.Sprintf("Activate your Linea organizer account: %s\n\nThis link expires in %d minutes.", inviteLink, int(validFor.Minutes()))

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
