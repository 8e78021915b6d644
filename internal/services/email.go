package services

import (
	"bytes"
	"context"
	"html/template"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// EmailConfig holds the SMTP settings. Mail is disabled when Host or User is empty.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService sends purchase receipts over SMTP.
type EmailService struct {
	sender mailSender
	from   string
}

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": FormatMoney,
}).Parse(`<h2>Thank you for your purchase</h2>
<p>Order <strong>{{.Number}}</strong>, {{.PurchasedAt.Format "02 Jan 2006 15:04"}}</p>
<table cellpadding="4">
<tr><th align="left">Product</th><th>Qty</th><th align="right">Price</th><th align="right">Subtotal</th></tr>
{{range .Lines}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{money .Price}}</td><td align="right">{{money .Subtotal}}</td></tr>
{{end}}</table>
<p>{{.TotalItems}} item(s), total <strong>{{money .TotalPrice}}</strong></p>
`))

// NewEmailService returns a mailer. Without SMTP settings sending is a logged no-op.
func NewEmailService(cfg EmailConfig) *EmailService {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	if cfg.Host == "" || cfg.User == "" {
		log.Info("EmailService - SMTP not configured, receipt mail disabled")
		return &EmailService{from: from}
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &EmailService{
		sender: gomail.NewDialer(cfg.Host, port, cfg.User, cfg.Password),
		from:   from,
	}
}

// Enabled reports whether SMTP is configured.
func (es *EmailService) Enabled() bool {
	return es.sender != nil
}

// SendReceipt mails the receipt to receipt.Email.
func (es *EmailService) SendReceipt(ctx context.Context, receipt models.Receipt) error {
	if receipt.Email == "" {
		return nil
	}
	if es.sender == nil {
		log.WithField("receipt", receipt.Number).Info("EmailService.SendReceipt - mail disabled, skipped")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderReceipt(receipt)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", es.from)
	m.SetHeader("To", receipt.Email)
	m.SetHeader("Subject", "Your order "+receipt.Number)
	m.SetBody("text/html", body)

	if err := es.sender.DialAndSend(m); err != nil {
		log.WithError(err).WithField("to", receipt.Email).Error("EmailService.SendReceipt - send failed")
		return errors.Wrap(err, "send receipt")
	}

	log.WithFields(log.Fields{"to": receipt.Email, "receipt": receipt.Number}).Info("EmailService.SendReceipt - sent")
	return nil
}

func renderReceipt(receipt models.Receipt) (string, error) {
	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, receipt); err != nil {
		return "", errors.Wrap(err, "render receipt")
	}
	return body.String(), nil
}
