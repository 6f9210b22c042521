package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/cinesync/internal/booking"
	"github.com/dukerupert/cinesync/internal/database"
	"github.com/dukerupert/cinesync/internal/grammar"
	"github.com/dukerupert/cinesync/internal/mailbox"
	"github.com/dukerupert/cinesync/internal/model"
	"github.com/dukerupert/cinesync/internal/reconcile"
	"github.com/dukerupert/cinesync/internal/store"
	"github.com/dukerupert/cinesync/internal/websocket"
)

const cineworldMail = `Your booking reference number is: ABC1234

You are going to see: *Wicked*
Cinema address: *Leicester Square, London WC2H 7NA*
Date: *25/12/2024 18:30*
Number of people going: *2*
Screen: *5*
Seat(s): *F12, F13*
Certification: *PG*
Running time: *118 minutes*

Use your e-ticket to go straight to the screen.
`

const picturehouseMail = `Your booking reference: *PH9X2KQ*

Your Order
Film/Event: Nosferatu (Subtitled)
Cinema: Picturehouse Central
Date: Saturday 14 December 2024
Time: 19:30
Screen: 2
Tickets: 2
Adult Member A-12
Adult Member A-13
About your order
`

// fakeMailbox answers searches by the query's sender.
type fakeMailbox struct {
	threads map[string][]mailbox.Thread
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeMailbox) Search(ctx context.Context, q mailbox.Query) ([]mailbox.Thread, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.threads[q.From], nil
}

type fakeResolver struct {
	minutes int
	titles  []string
}

func (f *fakeResolver) Runtime(_ context.Context, title string) (int, bool) {
	f.titles = append(f.titles, title)
	return f.minutes, f.minutes > 0
}

func msg(id, body string, at time.Time) mailbox.Message {
	return mailbox.Message{ID: id, Body: body, Date: at, Permalink: "https://mail.example/" + id}
}

func testMailbox() *fakeMailbox {
	at := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	return &fakeMailbox{threads: map[string][]mailbox.Thread{
		"tickets@cineworldtickets.com": {{ID: "t1", Messages: []mailbox.Message{
			msg("m2", "Thanks for your feedback!", at.Add(time.Hour)),
			msg("m1", cineworldMail, at),
		}}},
		"no-reply@picturehouses.com": {{ID: "t2", Messages: []mailbox.Message{
			msg("m3", picturehouseMail, at),
		}}},
	}}
}

func setupStore(t *testing.T) *store.EntryStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewEntryStore(db)
}

func newOrchestrator(mb mailbox.Searcher, s reconcile.Store, resolver RuntimeResolver) *Orchestrator {
	return New(Config{
		Mailbox:     mb,
		Grammars:    grammar.Builtin(time.UTC),
		Builder:     booking.NewBuilder(nil, nil),
		Resolver:    resolver,
		Store:       s,
		LinkSources: true,
	})
}

func TestRunCreatesEntries(t *testing.T) {
	s := setupStore(t)
	resolver := &fakeResolver{minutes: 95}
	o := newOrchestrator(testMailbox(), s, resolver)

	report, err := o.Run(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcomes[reconcile.Created] != 2 {
		t.Errorf("outcomes = %v, want 2 CREATED", report.Outcomes)
	}

	totals := report.Totals()
	if totals.Messages != 3 || totals.Bookings != 2 || totals.Skipped != 1 || totals.Defects != 0 {
		t.Errorf("totals = %+v", totals)
	}

	entries, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	byTitle := map[string]model.CalendarEntry{}
	for _, e := range entries {
		byTitle[e.Title] = e
	}

	wicked := byTitle["Wicked"]
	wantEnd := time.Date(2024, 12, 25, 20, 53, 0, 0, time.UTC)
	if !wicked.End.Equal(wantEnd) {
		t.Errorf("Wicked end = %v, want %v", wicked.End, wantEnd)
	}
	if !strings.Contains(wicked.Description, "Source: https://mail.example/m1") {
		t.Errorf("Wicked description = %q", wicked.Description)
	}

	nosferatu := byTitle["Nosferatu (Subtitled)"]
	if got := nosferatu.End.Sub(nosferatu.Start); got != 120*time.Minute {
		t.Errorf("Nosferatu length = %v, want 2h0m0s", got)
	}
	if len(resolver.titles) != 1 || resolver.titles[0] != "Nosferatu (Subtitled)" {
		t.Errorf("resolver titles = %q", resolver.titles)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	s := setupStore(t)
	o := newOrchestrator(testMailbox(), s, &fakeResolver{})

	if _, err := o.Run(context.Background(), false, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := s.ListAll(context.Background())

	report, err := o.Run(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Outcomes[reconcile.NoOp] != 2 {
		t.Errorf("second run outcomes = %v, want 2 NO_OP", report.Outcomes)
	}

	second, _ := s.ListAll(context.Background())
	if len(second) != len(first) {
		t.Fatalf("entries grew from %d to %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].End.Equal(second[i].End) || first[i].Description != second[i].Description {
			t.Errorf("entry %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestRunFallsBackToDefaultRuntime(t *testing.T) {
	s := setupStore(t)
	o := newOrchestrator(testMailbox(), s, &fakeResolver{})

	if _, err := o.Run(context.Background(), false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries, _ := s.ListAll(context.Background())
	for _, e := range entries {
		if e.Title != "Nosferatu (Subtitled)" {
			continue
		}
		want := time.Duration(booking.DefaultRuntimeMinutes+booking.PaddingMinutes) * time.Minute
		if got := e.End.Sub(e.Start); got != want {
			t.Errorf("length = %v, want %v", got, want)
		}
	}
}

func TestRunHealsAfterRuntimeResolves(t *testing.T) {
	s := setupStore(t)
	mb := testMailbox()

	if _, err := newOrchestrator(mb, s, &fakeResolver{}).Run(context.Background(), false, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := newOrchestrator(mb, s, &fakeResolver{minutes: 95}).Run(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Outcomes[reconcile.Updated] != 1 || report.Outcomes[reconcile.NoOp] != 1 {
		t.Errorf("outcomes = %v, want 1 UPDATED and 1 NO_OP", report.Outcomes)
	}
	entries, _ := s.ListAll(context.Background())
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestRunCountsDefects(t *testing.T) {
	s := setupStore(t)
	mb := testMailbox()
	broken := strings.Replace(cineworldMail, "Screen: *5*\n", "Screen: *5*\nScreen: *6*\n", 1)
	mb.threads["tickets@cineworldtickets.com"][0].Messages = append(
		mb.threads["tickets@cineworldtickets.com"][0].Messages,
		msg("m9", broken, time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)),
	)

	report, err := newOrchestrator(mb, s, &fakeResolver{}).Run(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := report.Totals().Defects; got != 1 {
		t.Errorf("defects = %d, want 1", got)
	}
	if got := report.Totals().Bookings; got != 2 {
		t.Errorf("bookings = %d, want 2", got)
	}
}

func TestRunMailboxErrorAborts(t *testing.T) {
	s := setupStore(t)
	mb := &fakeMailbox{err: errors.New("401 unauthorized")}

	if _, err := newOrchestrator(mb, s, nil).Run(context.Background(), false, nil); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := s.ListAll(context.Background())
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestRunDryRun(t *testing.T) {
	s := setupStore(t)
	report, err := newOrchestrator(testMailbox(), s, nil).Run(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcomes[reconcile.Created] != 2 {
		t.Errorf("outcomes = %v", report.Outcomes)
	}
	entries, _ := s.ListAll(context.Background())
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d entries", len(entries))
	}
}

// cancellingGrammar wraps Cineworld with a cancellation notice format.
type cancellingGrammar struct {
	*grammar.Cineworld
	cancel model.CancellationRecord
}

func (g cancellingGrammar) CancellationQuery() mailbox.Query {
	return mailbox.Query{From: "cancellations@cineworldtickets.com"}
}

func (g cancellingGrammar) ExtractCancellation(body string) (model.CancellationRecord, error) {
	if !strings.Contains(body, "has been cancelled") {
		return model.CancellationRecord{}, grammar.ErrNotBooking
	}
	return g.cancel, nil
}

func TestRunCancellationSuppressesCreation(t *testing.T) {
	s := setupStore(t)
	mb := testMailbox()
	mb.threads["cancellations@cineworldtickets.com"] = []mailbox.Thread{{Messages: []mailbox.Message{
		msg("c1", "Your booking has been cancelled.", time.Now()),
	}}}

	start := time.Date(2024, 12, 25, 18, 30, 0, 0, time.UTC)
	g := cancellingGrammar{
		Cineworld: grammar.NewCineworld(time.UTC),
		cancel: model.CancellationRecord{
			Chain:    "Cineworld",
			Film:     "Wicked",
			Start:    start,
			End:      booking.FinishTime(start, 118),
			Location: "Cineworld, Leicester Square, London WC2H 7NA",
		},
	}

	o := New(Config{Mailbox: mb, Grammars: []grammar.Grammar{g}, Store: s})
	report, err := o.Run(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcomes[reconcile.SuppressedByCancellation] != 1 {
		t.Errorf("outcomes = %v", report.Outcomes)
	}
	if report.Vendors[0].Cancellations != 1 {
		t.Errorf("cancellations = %d, want 1", report.Vendors[0].Cancellations)
	}
	entries, _ := s.ListAll(context.Background())
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *recordingHub) Broadcast(m websocket.Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	h.mu.Unlock()
}

func TestRunnerRecordsRun(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runs := store.NewRunStore(db)
	hub := &recordingHub{}
	o := newOrchestrator(testMailbox(), store.NewEntryStore(db), nil)
	r := NewRunner(o, runs, hub, false, nil)

	run, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != model.SyncStatusSucceeded {
		t.Errorf("status = %q", run.Status)
	}

	saved, err := runs.GetByID(context.Background(), run.ID)
	if err != nil || saved == nil {
		t.Fatalf("GetByID: %v, %v", saved, err)
	}
	if saved.Bookings != 2 || saved.Outcomes["CREATED"] != 2 {
		t.Errorf("saved = %+v", saved)
	}

	types := make([]string, 0, len(hub.msgs))
	for _, m := range hub.msgs {
		types = append(types, m.Type)
	}
	want := "sync_run_started,booking_reconciled,booking_reconciled,sync_run_finished"
	if strings.Join(types, ",") != want {
		t.Errorf("broadcasts = %s, want %s", strings.Join(types, ","), want)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runs := store.NewRunStore(db)
	o := newOrchestrator(&fakeMailbox{err: errors.New("boom")}, store.NewEntryStore(db), nil)

	run, err := NewRunner(o, runs, nil, false, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	saved, _ := runs.GetByID(context.Background(), run.ID)
	if saved == nil || saved.Status != model.SyncStatusFailed || !strings.Contains(saved.Error, "boom") {
		t.Errorf("saved = %+v", saved)
	}
}

func TestRunnerSingleFlight(t *testing.T) {
	mb := testMailbox()
	mb.block = make(chan struct{})
	mb.entered = make(chan struct{}, 10)

	o := newOrchestrator(mb, setupStore(t), nil)
	r := NewRunner(o, nil, nil, true, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-mb.entered

	if _, err := r.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent Run err = %v, want ErrRunInProgress", err)
	}

	close(mb.block)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}

func TestRunnerStopWaitsForPass(t *testing.T) {
	mb := testMailbox()
	mb.block = make(chan struct{})
	mb.entered = make(chan struct{}, 10)

	r := NewRunner(newOrchestrator(mb, setupStore(t), nil), nil, nil, true, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-mb.entered

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(mb.block)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}

	if _, err := r.Run(context.Background()); !errors.Is(err, ErrRunnerStopped) {
		t.Errorf("Run after Stop err = %v, want ErrRunnerStopped", err)
	}
}

func TestRunDryRunSeesEarlierCreates(t *testing.T) {
	s := setupStore(t)
	mb := testMailbox()
	mb.threads["tickets@cineworldtickets.com"] = append(mb.threads["tickets@cineworldtickets.com"],
		mailbox.Thread{ID: "t9", Messages: []mailbox.Message{
			msg("m4", cineworldMail, time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)),
		}},
	)

	o := New(Config{
		Mailbox:  mb,
		Grammars: grammar.Builtin(time.UTC),
		Builder:  booking.NewBuilder(nil, nil),
		Store:    s,
	})
	report, err := o.Run(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcomes[reconcile.Created] != 2 || report.Outcomes[reconcile.NoOp] != 1 {
		t.Errorf("outcomes = %v, want 2 CREATED and 1 NO_OP", report.Outcomes)
	}
	entries, _ := s.ListAll(context.Background())
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d entries", len(entries))
	}
}

func TestOrchestratorTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	o := New(Config{
		Mailbox:  testMailbox(),
		Grammars: grammar.Builtin(time.UTC),
		Builder:  booking.NewBuilder(nil, nil),
		Store:    setupStore(t),
		Logger:   logger,
	})
	if _, err := o.Run(context.Background(), false, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no log output")
	}
	for _, line := range lines {
		if n := strings.Count(line, "component="); n != 1 {
			t.Errorf("component attribute appears %d times: %s", n, line)
		}
	}
}
