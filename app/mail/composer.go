// Package mail composes plain text messages for new posts and delivers them
// into a Maildir.
package mail

import (
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const template = `MIME-Version: 1.0
Date: %s
Subject: %s
From: %s
Content-Type: text/plain; charset=utf-8

[Feed2Maildir] Read the update here:
%s

%s
`

type Message struct {
	Date        string // RFC 2822
	Title       string
	FeedName    string
	Link        string
	Description string
}

type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

func (c *Composer) Run(msg Message) []byte {
	return []byte(fmt.Sprintf(template,
		msg.Date,
		headerValue(msg.Title),
		headerValue(msg.FeedName),
		msg.Link,
		norm.NFC.String(msg.Description)))
}

// headerValue keeps a header on one line and encodes non-ASCII text.
func headerValue(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", " - ")
	return mime.QEncoding.Encode("utf-8", norm.NFC.String(value))
}
