package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

type capturedMail struct {
	messages []*gomail.Message
	err      error
}

func (c *capturedMail) DialAndSend(m ...*gomail.Message) error {
	c.messages = append(c.messages, m...)
	return c.err
}

func testReceipt(email string) models.Receipt {
	lines := []models.CartLineWithProduct{
		withProduct(line("a", 7, "10.00", 2), product(7, "Desk Lamp", "10.00")),
	}
	return models.NewReceipt("ORD-1", email, lines, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestEmailServiceDisabledWithoutSMTP(t *testing.T) {
	es := NewEmailService(EmailConfig{})
	assert.False(t, es.Enabled())
	assert.NoError(t, es.SendReceipt(context.Background(), testReceipt("buyer@example.com")))

	es = NewEmailService(EmailConfig{Host: "smtp.example.com", Port: 2525, User: "shop@example.com"})
	assert.True(t, es.Enabled())
	assert.Equal(t, "shop@example.com", es.from)
}

func TestEmailServiceSendsReceipt(t *testing.T) {
	sender := &capturedMail{}
	es := &EmailService{sender: sender, from: "shop@example.com"}

	require.NoError(t, es.SendReceipt(context.Background(), testReceipt("buyer@example.com")))
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"buyer@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Your order ORD-1"}, m.GetHeader("Subject"))

	assert.Equal(t, []string{"shop@example.com"}, m.GetHeader("From"))
}

func TestRenderReceipt(t *testing.T) {
	body, err := renderReceipt(testReceipt("buyer@example.com"))
	require.NoError(t, err)
	assert.Contains(t, body, "ORD-1")
	assert.Contains(t, body, "<td>Desk Lamp</td>")
	assert.Contains(t, body, "$20.00")
	assert.Contains(t, body, "01 May 2024 12:00")
}

func TestEmailServiceSkipsAndFails(t *testing.T) {
	sender := &capturedMail{err: errors.New("dial tcp: refused")}
	es := &EmailService{sender: sender, from: "shop@example.com"}

	require.NoError(t, es.SendReceipt(context.Background(), testReceipt("")))
	assert.Empty(t, sender.messages)

	err := es.SendReceipt(context.Background(), testReceipt("buyer@example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send receipt")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0.00", FormatMoney(decimal.Zero))
	assert.Equal(t, "$20.00", FormatMoney(decimal.NewFromInt(20)))
	assert.Equal(t, "$0.30", FormatMoney(decimal.RequireFromString("0.1").Mul(decimal.NewFromInt(3))))
	assert.Equal(t, "-$4.50", FormatMoney(decimal.RequireFromString("-4.5")))
}
