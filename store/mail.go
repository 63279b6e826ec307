package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mailbox folders.
const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
)

// Email is a message in the local mailbox.
type Email struct {
	ID        string
	Folder    string
	From      string
	To        string
	Cc        string
	Subject   string
	Body      string
	Delivered bool
	CreatedAt time.Time
}

// SaveEmail stores msg and returns it with its ID and timestamp set. An empty
// folder defaults to FolderInbox.
func (s *DB) SaveEmail(ctx context.Context, msg Email) (Email, error) {
	if msg.Folder == "" {
		msg.Folder = FolderInbox
	}
	msg.ID = uuid.New().String()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO emails (id, folder, from_addr, to_addr, cc, subject, body, delivered, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.Folder,
		msg.From,
		msg.To,
		msg.Cc,
		msg.Subject,
		msg.Body,
		boolToInt(msg.Delivered),
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Email{}, fmt.Errorf("failed to insert email: %w", err)
	}
	return msg, nil
}

// MarkDelivered records that an outgoing message reached the SMTP server.
func (s *DB) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET delivered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	return nil
}

// RecentEmails returns up to limit messages, newest first.
func (s *DB) RecentEmails(ctx context.Context, limit int) ([]Email, error) {
	return s.SearchEmails(ctx, EmailQuery{}, limit)
}

// EmailQuery filters mailbox searches. All set fields must match;
// comparisons are case-insensitive substring matches.
type EmailQuery struct {
	From    string
	To      string
	Subject string
	Terms   []string
}

// Empty reports whether the query matches everything.
func (q EmailQuery) Empty() bool {
	return q.From == "" && q.To == "" && q.Subject == "" && len(q.Terms) == 0
}

// ParseEmailQuery parses "from:", "to:" and "subject:" operators; the
// remaining words are free-text terms matched against sender, recipients,
// subject and body. Values may be double-quoted.
func ParseEmailQuery(raw string) EmailQuery {
	var q EmailQuery
	for _, tok := range tokenizeQuery(raw) {
		key, value, ok := strings.Cut(tok, ":")
		if ok && value != "" {
			switch strings.ToLower(key) {
			case "from":
				q.From = value
				continue
			case "to":
				q.To = value
				continue
			case "subject":
				q.Subject = value
				continue
			}
		}
		q.Terms = append(q.Terms, tok)
	}
	return q
}

func tokenizeQuery(raw string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '"':
			quoted = !quoted
		case (r == ' ' || r == '\t') && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// SearchEmails returns up to limit messages matching q, newest first. A
// limit of zero or less returns every match.
func (s *DB) SearchEmails(ctx context.Context, q EmailQuery, limit int) ([]Email, error) {
	var (
		where []string
		args  []any
	)
	like := func(column, value string) {
		where = append(where, column+` LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(value)+"%")
	}
	if q.From != "" {
		like("from_addr", q.From)
	}
	if q.To != "" {
		where = append(where, `(to_addr LIKE ? ESCAPE '\' OR cc LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(q.To) + "%"
		args = append(args, pattern, pattern)
	}
	if q.Subject != "" {
		like("subject", q.Subject)
	}
	for _, term := range q.Terms {
		pattern := "%" + escapeLike(term) + "%"
		where = append(where, `(from_addr LIKE ? ESCAPE '\' OR to_addr LIKE ? ESCAPE '\' OR subject LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}

	query := `SELECT id, folder, from_addr, to_addr, cc, subject, body, delivered, created_at FROM emails`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		var (
			msg       Email
			delivered int
			created   int64
		)
		if err := rows.Scan(&msg.ID, &msg.Folder, &msg.From, &msg.To, &msg.Cc, &msg.Subject, &msg.Body, &delivered, &created); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		msg.Delivered = delivered != 0
		msg.CreatedAt = time.Unix(0, created)
		emails = append(emails, msg)
	}
	return emails, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
