package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sandesh-mail/sandesh/db"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
	"github.com/sandesh-mail/sandesh/server/outbound"
)

func handleSend() {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	flags := addCommonFlags(fs)

	username := fs.String("username", "", "Account to send as (required)")
	to := fs.String("to", "", "Comma-separated recipient addresses (required)")
	cc := fs.String("cc", "", "Comma-separated cc addresses")
	subject := fs.String("subject", "", "Message subject")
	body := fs.String("body", "", "Message body")
	signature := fs.Bool("signature", true, "Append the account's signature")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *username == "" {
		fmt.Printf("Error: --username is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	if *to == "" {
		fmt.Printf("Error: --to is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, flags)

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	account, err := database.GetAccountByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("Failed to look up account: %v", err)
	}

	settings := db.NewSystemSettings(database, cfg.Namespace)
	sendWindow, err := cfg.Outbound.GetSendRateWindow()
	if err != nil {
		log.Fatalf("Invalid send rate window: %v", err)
	}

	transport := &outbound.SMTPTransport{
		Addr:        cfg.Outbound.Addr,
		Hostname:    cfg.Servers.SMTP.Hostname,
		Username:    cfg.Outbound.Username,
		Password:    cfg.Outbound.Password,
		UseTLS:      cfg.Outbound.TLS,
		UseStartTLS: cfg.Outbound.TLSStartTLS,
		TLSVerify:   cfg.Outbound.TLSVerify,
	}

	sender := outbound.NewSender(database, settings, transport, ratelimit.NewLimiter(), outbound.SenderOptions{
		SendRateLimit:  cfg.Outbound.SendRateLimit,
		SendRateWindow: sendWindow,
	})

	err = sender.Send(ctx, &outbound.Request{
		Account:          account,
		To:               splitAddresses(*to),
		Cc:               splitAddresses(*cc),
		Subject:          *subject,
		Body:             *body,
		IncludeSignature: *signature,
	})
	if err != nil {
		log.Fatalf("Failed to send: %v", err)
	}

	fmt.Printf("Message sent as %s\n", *username)
}

func splitAddresses(list string) []string {
	if list == "" {
		return nil
	}
	var out []string
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
