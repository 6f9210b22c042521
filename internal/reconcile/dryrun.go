package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/cinesync/internal/model"
)

// DryRunStore reads from the wrapped store and logs mutations instead of
// performing them. Simulated changes are remembered and overlaid on later
// queries, so a pass sees the calendar as a real run would have left it.
type DryRunStore struct {
	inner  Store
	logger *slog.Logger

	mu      sync.Mutex
	seq     int
	created []model.CalendarEntry
	updated map[string]model.CalendarEntry
	deleted map[string]bool
}

func NewDryRunStore(inner Store, logger *slog.Logger) *DryRunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunStore{
		inner:   inner,
		logger:  logger,
		updated: make(map[string]model.CalendarEntry),
		deleted: make(map[string]bool),
	}
}

func (s *DryRunStore) Query(ctx context.Context, start, end time.Time, descriptionContains string) ([]model.CalendarEntry, error) {
	entries, err := s.inner.Query(ctx, start, end, descriptionContains)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CalendarEntry, 0, len(entries)+len(s.created))
	for _, e := range entries {
		if s.deleted[e.ID] {
			continue
		}
		if u, ok := s.updated[e.ID]; ok {
			if !overlaps(u, start, end, descriptionContains) {
				continue
			}
			e = u
		}
		out = append(out, e)
	}
	for _, e := range s.created {
		if !s.deleted[e.ID] && overlaps(e, start, end, descriptionContains) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *DryRunStore) Create(_ context.Context, in model.EntryInput) (*model.CalendarEntry, error) {
	s.mu.Lock()
	s.seq++
	e := entryFromInput("dry-run-"+strconv.Itoa(s.seq), in)
	s.created = append(s.created, *e)
	s.mu.Unlock()

	s.logger.Info("dry run: would create entry", "title", in.Title, "start", in.Start, "end", in.End, "location", in.Location)
	return e, nil
}

func (s *DryRunStore) Update(_ context.Context, id string, in model.EntryInput) (*model.CalendarEntry, error) {
	e := entryFromInput(id, in)

	s.mu.Lock()
	replaced := false
	for i := range s.created {
		if s.created[i].ID == id {
			s.created[i] = *e
			replaced = true
		}
	}
	if !replaced {
		s.updated[id] = *e
	}
	s.mu.Unlock()

	s.logger.Info("dry run: would update entry", "id", id, "title", in.Title, "start", in.Start, "end", in.End)
	return e, nil
}

func (s *DryRunStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	s.deleted[id] = true
	s.mu.Unlock()

	s.logger.Info("dry run: would delete entry", "id", id)
	return nil
}

func overlaps(e model.CalendarEntry, start, end time.Time, contains string) bool {
	return e.Start.Before(end) && e.End.After(start) && strings.Contains(e.Description, contains)
}

func entryFromInput(id string, in model.EntryInput) *model.CalendarEntry {
	return &model.CalendarEntry{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.Start,
		End:         in.End,
	}
}
