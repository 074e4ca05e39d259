package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// TelegramService handles sending admin notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// PaymentCapturedNotification contains captured payment data for the admin chat.
type PaymentCapturedNotification struct {
	OrderID   string
	PaymentID string
	Method    string
	Amount    int64
}

// NotifyPaymentCaptured tells the admin chat about a captured payment.
func (s *TelegramService) NotifyPaymentCaptured(n PaymentCapturedNotification) error {
	text := fmt.Sprintf(
		"💳 <b>Payment captured</b>\nOrder: %s\nPayment: %s\nMethod: %s\nAmount: %.2f INR",
		n.OrderID, n.PaymentID, n.Method, float64(n.Amount)/100,
	)
	return s.SendToAdmin(text)
}

// TicketNotification contains new ticket data for the admin chat.
type TicketNotification struct {
	TicketID string
	Service  string
	UserName string
}

// NotifyNewTicket tells the admin chat about a new repair ticket.
func (s *TelegramService) NotifyNewTicket(n TicketNotification) error {
	text := fmt.Sprintf(
		"🛠 <b>New repair ticket</b>\nTicket: %s\nService: %s\nCustomer: %s",
		n.TicketID, n.Service, n.UserName,
	)
	return s.SendToAdmin(text)
}
