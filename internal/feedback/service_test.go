package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"satlearn/internal/types"
)

type fakeStore struct {
	rows      []types.Feedback
	listErr   error
	markErr   map[string]error
	marked    []string
	gotLimit  int
}

func (f *fakeStore) ListUnsent(_ context.Context, limit int) ([]types.Feedback, error) {
	f.gotLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rows, nil
}

func (f *fakeStore) MarkEmailSent(_ context.Context, id string) error {
	if err := f.markErr[id]; err != nil {
		return err
	}
	f.marked = append(f.marked, id)
	return nil
}

type fakeEmailer struct {
	sent    []types.SendInput
	failFor map[string]error // keyed by ReferenceID
}

func (f *fakeEmailer) Send(_ context.Context, input types.SendInput) (string, error) {
	if err := f.failFor[input.ReferenceID]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, input)
	return "msg_" + input.ReferenceID, nil
}

func testConfig() Config {
	return Config{
		FromAddress: "hello@satlearn.app",
		Recipient:   "team@satlearn.app",
	}
}

func sampleFeedback(id string) types.Feedback {
	return types.Feedback{
		ID:        id,
		Email:     "alice@example.com",
		Name:      "Alice",
		Category:  "bug",
		Message:   "The <charts> are broken & sad",
		CreatedAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_Success(t *testing.T) {
	emailer := &fakeEmailer{}
	svc := NewService(&fakeStore{}, emailer, testConfig(), nil, nil)

	msgID, err := svc.Dispatch(context.Background(), sampleFeedback("fb_1"))
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if msgID != "msg_fb_1" {
		t.Errorf("msgID = %q", msgID)
	}

	sent := emailer.sent[0]
	if sent.To != "team@satlearn.app" || sent.From != "hello@satlearn.app" {
		t.Errorf("addressing wrong: %+v", sent)
	}
	if !strings.Contains(sent.Subject, "bug") || !strings.Contains(sent.Subject, "Alice") {
		t.Errorf("subject = %q", sent.Subject)
	}
	// User-controlled content must be escaped in the HTML body.
	if strings.Contains(sent.HTML, "<charts>") {
		t.Errorf("HTML body not escaped: %q", sent.HTML)
	}
	if !strings.Contains(sent.HTML, "&lt;charts&gt;") {
		t.Errorf("HTML body missing escaped message: %q", sent.HTML)
	}
}

func TestDispatch_AnonymousDefaults(t *testing.T) {
	emailer := &fakeEmailer{}
	svc := NewService(&fakeStore{}, emailer, testConfig(), nil, nil)

	fb := sampleFeedback("fb_2")
	fb.Name = ""
	fb.Category = ""
	if _, err := svc.Dispatch(context.Background(), fb); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	subject := emailer.sent[0].Subject
	if !strings.Contains(subject, "Anonymous") || !strings.Contains(subject, "general") {
		t.Errorf("subject = %q, want Anonymous/general defaults", subject)
	}
}

func TestSweep_EmptyBatch(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeEmailer{}, testConfig(), nil, nil)

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Processed != 0 || result.Errors != 0 {
		t.Errorf("result = %+v, want zeroes", result)
	}
	if store.gotLimit != sweepBatchSize {
		t.Errorf("limit = %d, want %d", store.gotLimit, sweepBatchSize)
	}
}

func TestSweep_ProcessesAndMarks(t *testing.T) {
	store := &fakeStore{rows: []types.Feedback{
		sampleFeedback("fb_1"),
		sampleFeedback("fb_2"),
	}}
	emailer := &fakeEmailer{}
	svc := NewService(store, emailer, testConfig(), nil, nil)

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Processed != 2 || result.Errors != 0 {
		t.Errorf("result = %+v, want 2 processed", result)
	}
	if len(store.marked) != 2 {
		t.Errorf("marked = %v, want both rows flagged", store.marked)
	}
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	store := &fakeStore{rows: []types.Feedback{
		sampleFeedback("fb_1"),
		sampleFeedback("fb_2"),
		sampleFeedback("fb_3"),
	}}
	emailer := &fakeEmailer{failFor: map[string]error{
		"fb_2": errors.New("provider down"),
	}}
	svc := NewService(store, emailer, testConfig(), nil, nil)

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Processed != 2 || result.Errors != 1 {
		t.Errorf("result = %+v, want 2 processed / 1 error", result)
	}
	// The failed row must not be flagged; it retries next run.
	for _, id := range store.marked {
		if id == "fb_2" {
			t.Error("failed row fb_2 was marked sent")
		}
	}
}

func TestSweep_MarkFailureCountsAsError(t *testing.T) {
	store := &fakeStore{
		rows:    []types.Feedback{sampleFeedback("fb_1")},
		markErr: map[string]error{"fb_1": errors.New("connection refused")},
	}
	svc := NewService(store, &fakeEmailer{}, testConfig(), nil, nil)

	result, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Processed != 0 || result.Errors != 1 {
		t.Errorf("result = %+v, want 0 processed / 1 error", result)
	}
}

func TestSweep_ListErrorPropagates(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	svc := NewService(store, &fakeEmailer{}, testConfig(), nil, nil)

	if _, err := svc.Sweep(context.Background()); err == nil {
		t.Fatal("expected error from store")
	}
}
