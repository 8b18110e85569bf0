package auth

import (
	"fmt"
	"net/smtp"

	"gateflow/config"
)

func SendMagicLinkEmail(to string, token string) error {
	from := config.SMTP_FROM
	password := config.SMTP_PASSWORD
	host := config.SMTP_HOST
	port := config.SMTP_PORT

	auth := smtp.PlainAuth("", from, password, host)

	link := fmt.Sprintf("%s/magic?token=%s", config.APP_URL, token)
	subject := "Your GateFlow login link"
	body := fmt.Sprintf("Click the following link to access your purchases:\n\n%s\n\nThe link is valid for 24 hours and can be used once.", link)

	message := []byte("Subject: " + subject + "\r\n" +
		"From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body + "\r\n")

	err := smtp.SendMail(host+":"+port, auth, from, []string{to}, message)
	if err != nil {
		fmt.Println("❌ SMTP error:", err)
	}
	return err
}
