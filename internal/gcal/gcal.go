// Package gcal implements a calendar store on the Google Calendar API.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dukerupert/cinesync/internal/model"
)

const defaultBaseURL = "https://www.googleapis.com"

type Store struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
}

type Option func(*Store)

func WithBaseURL(u string) Option {
	return func(s *Store) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewStore returns a store writing to calendarID ("primary" when empty)
// through an authorized HTTP client.
func NewStore(httpClient *http.Client, calendarID string, opts ...Option) *Store {
	if calendarID == "" {
		calendarID = "primary"
	}
	s := &Store{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		calendarID: calendarID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) events(ctx context.Context) (*calendar.EventsService, error) {
	svc, err := calendar.NewService(ctx,
		option.WithHTTPClient(s.httpClient),
		option.WithEndpoint(s.baseURL+"/calendar/v3/"),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return svc.Events, nil
}

// Query returns events overlapping [start, end) whose description contains
// the given text, oldest first.
func (s *Store) Query(ctx context.Context, start, end time.Time, contains string) ([]model.CalendarEntry, error) {
	events, err := s.events(ctx)
	if err != nil {
		return nil, err
	}

	var entries []model.CalendarEntry
	pageToken := ""
	for {
		call := events.List(s.calendarID).
			TimeMin(start.UTC().Format(time.RFC3339)).
			TimeMax(end.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, ev := range page.Items {
			if ev.Status == "cancelled" || !strings.Contains(ev.Description, contains) {
				continue
			}
			e, err := toEntry(ev)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (s *Store) Create(ctx context.Context, in model.EntryInput) (*model.CalendarEntry, error) {
	events, err := s.events(ctx)
	if err != nil {
		return nil, err
	}
	out, err := events.Insert(s.calendarID, fromInput(in)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	e, err := toEntry(out)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) Update(ctx context.Context, id string, in model.EntryInput) (*model.CalendarEntry, error) {
	events, err := s.events(ctx)
	if err != nil {
		return nil, err
	}
	out, err := events.Update(s.calendarID, id, fromInput(in)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}
	e, err := toEntry(out)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes an event. An event that is already gone is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	events, err := s.events(ctx)
	if err != nil {
		return err
	}
	err = events.Delete(s.calendarID, id).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusGone || apiErr.Code == http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func fromInput(in model.EntryInput) *calendar.Event {
	return &calendar.Event{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339)},
	}
}

// toEntry converts a timed event. All-day events have no DateTime and are
// rejected.
func toEntry(ev *calendar.Event) (model.CalendarEntry, error) {
	if ev.Start == nil || ev.End == nil {
		return model.CalendarEntry{}, fmt.Errorf("event %s has no start or end", ev.Id)
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return model.CalendarEntry{}, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		return model.CalendarEntry{}, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	e := model.CalendarEntry{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       start,
		End:         end,
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, ev.Created)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, ev.Updated)
	return e, nil
}
