package mailer

import (
	"fmt"
	"time"

	"github.com/linea-events/linea-auth/pkg/logger"
)

// DevMailer prints the link instead of sending it. Local development only.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendMagicLinkEmail(toEmail, magicLink string, validFor time.Duration) error {
	logger.Info("📧 [DEV MAIL] Magic Link Email",
		"to", toEmail,
		"magic_link", magicLink,
		"valid_for", validFor.String(),
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 MAGIC LINK EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Subject: Sign in to Linea\n"+
		"\n"+
		"Magic Link: %s\n"+
		"Valid for: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, magicLink, validFor)

	return nil
}

func (d *DevMailer) SendOwnerInviteEmail(toEmail, toName, inviteLink string, validFor time.Duration) error {
	logger.Info("📧 [DEV MAIL] Owner Invitation Email",
		"to", toEmail,
		"name", toName,
		"invite_link", inviteLink,
		"valid_for", validFor.String(),
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 OWNER INVITATION EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: Your Linea organizer invitation\n"+
		"\n"+
		"Invitation Link: %s\n"+
		"Valid for: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, toName, inviteLink, validFor)

	return nil
}
