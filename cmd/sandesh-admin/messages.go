package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sandesh-mail/sandesh/consts"
)

func handleListMessages() {
	fs := flag.NewFlagSet("list-messages", flag.ExitOnError)
	flags := addCommonFlags(fs)

	username := fs.String("username", "", "Username of the account (required)")
	mailbox := fs.String("mailbox", consts.MailboxInbox, "Mailbox to list")
	limit := fs.Int("limit", 20, "Maximum number of messages to show (0 for all)")
	messageID := fs.Int64("id", 0, "Print one message in full instead of listing")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *username == "" {
		fmt.Printf("Error: --username is required\n\n")
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

	if *messageID != 0 {
		msg, err := database.GetMessageByID(ctx, account.ID, *messageID)
		if err != nil {
			log.Fatalf("Failed to get message: %v", err)
		}
		fmt.Printf("From: %s\nTo: %s\nSubject: %s\nDate: %s\nRead: %v\n\n%s\n",
			msg.Sender, strings.Join(msg.Recipients, ", "), msg.Subject,
			msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.IsRead, msg.Body)
		return
	}

	mbox, err := database.GetMailboxByName(ctx, account.ID, *mailbox)
	if err != nil {
		log.Fatalf("Failed to look up mailbox: %v", err)
	}

	messages, err := database.ListMailboxMessages(ctx, account.ID, mbox.ID, *limit, 0)
	if err != nil {
		log.Fatalf("Failed to list messages: %v", err)
	}

	if len(messages) == 0 {
		fmt.Printf("No messages in %s\n", *mailbox)
		return
	}

	fmt.Printf("%-8s %-6s %-20s %-30s %s\n", "ID", "READ", "DATE", "FROM", "SUBJECT")
	for _, msg := range messages {
		read := " "
		if msg.IsRead {
			read = "*"
		}
		fmt.Printf("%-8d %-6s %-20s %-30s %s\n", msg.ID, read,
			msg.CreatedAt.Format("2006-01-02 15:04"), truncate(msg.Sender, 30), msg.Subject)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
