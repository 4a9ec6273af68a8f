package mailer

import "time"

type Service interface {
	SendMagicLinkEmail(toEmail, magicLink string, validFor time.Duration) error
	SendOwnerInviteEmail(toEmail, toName, inviteLink string, validFor time.Duration) error
}
