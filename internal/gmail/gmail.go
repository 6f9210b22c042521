// Package gmail implements mailbox.Searcher on the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dukerupert/cinesync/internal/mailbox"
)

const defaultBaseURL = "https://gmail.googleapis.com"

// permalinkBase is the web UI address of a message by id.
const permalinkBase = "https://mail.google.com/mail/u/0/#all/"

type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUser sets the mailbox owner. Defaults to "me".
func WithUser(user string) Option {
	return func(c *Client) {
		if user != "" {
			c.user = user
		}
	}
}

// NewClient wraps an already authorized HTTP client, normally one built by
// googleauth.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		user:       "me",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) service(ctx context.Context) (*gm.Service, error) {
	svc, err := gm.NewService(ctx,
		option.WithHTTPClient(c.httpClient),
		option.WithEndpoint(c.baseURL+"/"),
	)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}

// Search returns every thread matching q with full message bodies.
func (c *Client) Search(ctx context.Context, q mailbox.Query) ([]mailbox.Thread, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := c.listThreadIDs(ctx, svc, q.String())
	if err != nil {
		return nil, err
	}

	threads := make([]mailbox.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := c.getThread(ctx, svc, id)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (c *Client) listThreadIDs(ctx context.Context, svc *gm.Service, query string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Threads.List(c.user).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list threads: %w", err)
		}
		for _, t := range page.Threads {
			ids = append(ids, t.Id)
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) getThread(ctx context.Context, svc *gm.Service, id string) (mailbox.Thread, error) {
	raw, err := svc.Users.Threads.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return mailbox.Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}

	t := mailbox.Thread{ID: raw.Id, Messages: make([]mailbox.Message, 0, len(raw.Messages))}
	for _, m := range raw.Messages {
		body, err := c.messageText(ctx, svc, m)
		if err != nil {
			return mailbox.Thread{}, fmt.Errorf("decode message %s: %w", m.Id, err)
		}
		t.Messages = append(t.Messages, mailbox.Message{
			ID:        m.Id,
			ThreadID:  m.ThreadId,
			Date:      time.UnixMilli(m.InternalDate),
			Body:      body,
			Permalink: permalinkBase + m.Id,
		})
	}
	return t, nil
}

// messageText returns the text/plain parts of m, or the rendered text/html
// parts when the message has no plain alternative.
func (c *Client) messageText(ctx context.Context, svc *gm.Service, m *gm.Message) (string, error) {
	if m.Payload == nil {
		return "", nil
	}

	fetch := func(p *gm.MessagePart) ([]byte, error) {
		return c.partData(ctx, svc, m.Id, p)
	}

	plain, err := collect(m.Payload, "text/plain", fetch)
	if err != nil {
		return "", err
	}
	if len(plain) > 0 {
		return strings.Join(plain, "\n"), nil
	}

	htmlParts, err := collect(m.Payload, "text/html", fetch)
	if err != nil {
		return "", err
	}
	rendered := make([]string, 0, len(htmlParts))
	for _, h := range htmlParts {
		text, err := renderHTML(h)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, text)
	}
	return strings.Join(rendered, "\n"), nil
}

// partData decodes a part's body, fetching it separately when Gmail stored
// it as an attachment.
func (c *Client) partData(ctx context.Context, svc *gm.Service, messageID string, p *gm.MessagePart) ([]byte, error) {
	if p.Body == nil {
		return nil, nil
	}
	data := p.Body.Data
	if data == "" && p.Body.AttachmentId != "" {
		att, err := svc.Users.Messages.Attachments.Get(c.user, messageID, p.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get attachment %s: %w", p.Body.AttachmentId, err)
		}
		data = att.Data
	}
	if data == "" {
		return nil, nil
	}
	return decodeBody(data)
}

// collect gathers the decoded bodies of every part of the given MIME type,
// depth first.
func collect(p *gm.MessagePart, mimeType string, fetch func(*gm.MessagePart) ([]byte, error)) ([]string, error) {
	var out []string
	if strings.HasPrefix(p.MimeType, mimeType) && p.Filename == "" {
		data, err := fetch(p)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			out = append(out, string(data))
		}
	}
	for _, child := range p.Parts {
		sub, err := collect(child, mimeType, fetch)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// decodeBody accepts padded or unpadded base64url.
func decodeBody(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
