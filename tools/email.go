package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/martinemde/chatagent/agentloop"
	"github.com/martinemde/chatagent/store"
)

const maxEmailResults = 20

// Mailer delivers an outgoing message.
type Mailer interface {
	Send(ctx context.Context, msg OutgoingEmail) error
}

// OutgoingEmail is a plain-text message handed to a Mailer.
type OutgoingEmail struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Recipients returns the envelope recipients.
func (m OutgoingEmail) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}

// Message builds the plain-text MIME message for m.
func (m OutgoingEmail) Message(now time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("invalid sender '%s': %w", m.From, err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(m.Cc) > 0 {
		if err := msg.Cc(m.Cc...); err != nil {
			return nil, fmt.Errorf("invalid cc recipient: %w", err)
		}
	}
	msg.Subject(sanitizeHeader(m.Subject))
	msg.SetDateWithValue(now)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// SMTPMailer sends mail through an SMTP relay. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration // 30s when zero
}

// Send delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg OutgoingEmail) error {
	message, err := msg.Message(time.Now())
	if err != nil {
		return err
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTimeout(timeout),
	}
	if m.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}

	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func registerSendEmail(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "send_email",
			Description: "Send an email. Can send to one or multiple recipients, with optional CC.",
			Parameters: objectSchema(map[string]interface{}{
				"to":      stringProp("Recipient email address (e.g., 'john@example.com')"),
				"subject": stringProp("Email subject line"),
				"body":    stringProp("Email body text/content"),
				"cc":      stringProp("Optional CC recipients (comma-separated)"),
			}, "to", "subject", "body"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			to, err := requiredString(args, "to")
			if err != nil {
				return "", err
			}
			subject, err := requiredString(args, "subject")
			if err != nil {
				return "", err
			}
			body, ok := agentloop.GetStringArg(args, "body")
			if !ok {
				return "", fmt.Errorf("body is required")
			}
			cc, _ := agentloop.GetStringArg(args, "cc")
			return sendEmail(ctx, d, to, subject, body, cc), nil
		},
	})
}

func sendEmail(ctx context.Context, d Deps, to, subject, body, cc string) string {
	msg := OutgoingEmail{
		From:    d.MailFrom,
		To:      splitAddresses(to),
		Cc:      splitAddresses(cc),
		Subject: subject,
		Body:    body,
	}
	if len(msg.To) == 0 {
		return "Error sending email: no valid recipient address"
	}
	for _, addr := range msg.Recipients() {
		if !strings.Contains(addr, "@") {
			return fmt.Sprintf("Error sending email: invalid address '%s'", addr)
		}
	}

	saved, err := d.DB.SaveEmail(ctx, store.Email{
		Folder:  store.FolderSent,
		From:    msg.From,
		To:      strings.Join(msg.To, ", "),
		Cc:      strings.Join(msg.Cc, ", "),
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Sprintf("Error sending email: %v", err)
	}

	if d.Mailer == nil {
		return fmt.Sprintf("✅ Email saved to the local mailbox (SMTP delivery is not configured).\nMessage ID: %s\nTo: %s\nSubject: %s",
			saved.ID, to, subject)
	}

	if err := d.Mailer.Send(ctx, msg); err != nil {
		d.Logger.Warn("email delivery failed", "message_id", saved.ID, "error", err)
		return fmt.Sprintf("Error sending email: %v", err)
	}
	if err := d.DB.MarkDelivered(ctx, saved.ID); err != nil {
		d.Logger.Warn("failed to mark email delivered", "message_id", saved.ID, "error", err)
	}
	return fmt.Sprintf("✅ Email sent successfully!\nMessage ID: %s\nTo: %s\nSubject: %s", saved.ID, to, subject)
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func registerReadEmails(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "read_emails",
			Description: "Read recent emails from the mailbox. Can retrieve up to 20 recent emails.",
			Parameters: objectSchema(map[string]interface{}{
				"max_results": intProp("Number of emails to retrieve (1-20, default: 5)", 5),
				"query":       stringProp("Optional search query to filter emails (e.g., 'from:john@example.com', 'subject:meeting')"),
			}),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			limit := intArg(args, "max_results", 5, 1, maxEmailResults)
			query, _ := agentloop.GetStringArg(args, "query")
			return readEmails(ctx, d, limit, strings.TrimSpace(query)), nil
		},
	})
}

func registerSearchEmails(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "search_emails",
			Description: "Search for specific emails using search queries. Supports operators like 'from:', 'to:' and 'subject:'; other words match anywhere in the message.",
			Parameters: objectSchema(map[string]interface{}{
				"query":       stringProp("Search query (e.g., 'from:john@example.com', 'subject:invoice', 'budget')"),
				"max_results": intProp("Maximum number of results to return (1-20, default: 10)", 10),
			}, "query"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			query, err := requiredString(args, "query")
			if err != nil {
				return "", err
			}
			limit := intArg(args, "max_results", 10, 1, maxEmailResults)
			return readEmails(ctx, d, limit, strings.TrimSpace(query)), nil
		},
	})
}

func readEmails(ctx context.Context, d Deps, limit int, query string) string {
	messages, err := d.DB.SearchEmails(ctx, store.ParseEmailQuery(query), limit)
	if err != nil {
		return fmt.Sprintf("Error reading emails: %v", err)
	}
	if len(messages) == 0 {
		if query == "" {
			return "No emails found."
		}
		return fmt.Sprintf("No emails found matching: %s", query)
	}

	title := "Recent emails"
	if query != "" {
		title = "Emails matching: " + query
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📧 %s (showing %d):\n\n", title, len(messages))
	for i, m := range messages {
		subject := m.Subject
		if subject == "" {
			subject = "No Subject"
		}
		from := m.From
		if from == "" {
			from = "Unknown"
		}
		fmt.Fprintf(&sb, "%d. From: %s\n", i+1, from)
		if m.Folder == store.FolderSent {
			fmt.Fprintf(&sb, "   To: %s\n", m.To)
		}
		fmt.Fprintf(&sb, "   Subject: %s\n", subject)
		fmt.Fprintf(&sb, "   Date: %s\n", m.CreatedAt.Format(time.RFC1123Z))
		fmt.Fprintf(&sb, "   Preview: %s...\n\n", previewText(m.Body, 100))
	}
	return strings.TrimSpace(sb.String())
}

// previewText collapses whitespace and keeps the first n runes.
func previewText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
