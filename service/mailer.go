package service

import (
	"fmt"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/config"
	"github.com/Gestion-inmobiliaria/gi-firmas/model"
	"gopkg.in/gomail.v2"
)

// Invitation carries everything needed to email a signer their signing link
type Invitation struct {
	To             string
	SignerName     string
	SignerType     model.SignerType
	ContractNumber int
	SigningURL     string
	ExpiresAt      time.Time
}

// Mailer delivers signing invitations
type Mailer interface {
	SendInvitation(inv *Invitation) error
}

// SMTPMailer sends invitations through the configured SMTP relay
type SMTPMailer struct {
	cfg    *config.MailConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg *config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

const invitationBody = `<p>Estimado(a) %s,</p>
<p>Usted ha sido invitado(a) a firmar digitalmente el contrato N° %d.</p>
<p>Para revisar el documento y registrar su firma, ingrese al siguiente enlace:</p>
<p><a href="%s">%s</a></p>
<p>El enlace es personal, de un solo uso, y vence el %s.</p>
<p>Si usted no esperaba esta invitación, ignore este correo.</p>
`

// invitationHTML renders the invitation email body
func invitationHTML(inv *Invitation) string {
	return fmt.Sprintf(invitationBody,
		inv.SignerName,
		inv.ContractNumber,
		inv.SigningURL, inv.SigningURL,
		inv.ExpiresAt.Format("02/01/2006 15:04"),
	)
}

// message assembles the invitation email without sending it
func (m *SMTPMailer) message(inv *Invitation) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", inv.To)
	msg.SetHeader("Subject", fmt.Sprintf("Firma digital pendiente - Contrato N° %d", inv.ContractNumber))
	msg.SetBody("text/html", invitationHTML(inv))
	return msg
}

func (m *SMTPMailer) SendInvitation(inv *Invitation) error {
	if err := m.dialer.DialAndSend(m.message(inv)); err != nil {
		return fmt.Errorf("send invitation to %s: %w", inv.To, err)
	}
	return nil
}
