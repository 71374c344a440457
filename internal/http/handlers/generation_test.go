package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
)

type fakeBatchRepo struct {
	batches map[string]*domain.GenerationBatch
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.GenerationBatch) error {
	copied := *b
	f.batches[b.ID] = &copied
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (*domain.GenerationBatch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBatchRepo) MarkProcessing(ctx context.Context, id string) error { return nil }
func (f *fakeBatchRepo) MarkCompleted(ctx context.Context, id string) error  { return nil }
func (f *fakeBatchRepo) MarkFailed(ctx context.Context, id, msg string) error {
	b, ok := f.batches[id]
	if !ok || b.Status.IsTerminal() {
		return nil
	}
	b.Status = domain.BatchStatusFailed
	b.ErrorMessage = msg
	return nil
}

func (f *fakeBatchRepo) RequestCancel(ctx context.Context, id string) error {
	b, ok := f.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.CancelRequested = true
	return nil
}

type fakeJobRepo struct {
	created   []*domain.Job
	createErr error
}

func (f *fakeJobRepo) Create(ctx context.Context, j *domain.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *j
	f.created = append(f.created, &copied)
	return nil
}

func (f *fakeJobRepo) Claim(ctx context.Context, id string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) ClaimNextPending(ctx context.Context, minAge time.Duration) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, id string, result json.RawMessage) error {
	return nil
}
func (f *fakeJobRepo) Fail(ctx context.Context, id, msg string) error { return nil }
func (f *fakeJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

type fakeProfileRepo struct {
	profiles map[string]*domain.Profile
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

type fakeContentRepo struct {
	ideas map[string][]domain.ContentIdea
}

func (f *fakeContentRepo) InsertAll(ctx context.Context, ideas []domain.ContentIdea) error {
	return nil
}

func (f *fakeContentRepo) ListByBatchID(ctx context.Context, batchID string) ([]domain.ContentIdea, error) {
	return f.ideas[batchID], nil
}

type fakeNotifier struct {
	ids []string
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, jobID string) error {
	f.ids = append(f.ids, jobID)
	return f.err
}

type testEnv struct {
	app      *handlers.App
	batches  *fakeBatchRepo
	jobs     *fakeJobRepo
	profiles *fakeProfileRepo
	content  *fakeContentRepo
	notifier *fakeNotifier
	handler  http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		batches:  &fakeBatchRepo{batches: map[string]*domain.GenerationBatch{}},
		jobs:     &fakeJobRepo{},
		profiles: &fakeProfileRepo{profiles: map[string]*domain.Profile{}},
		content:  &fakeContentRepo{ideas: map[string][]domain.ContentIdea{}},
		notifier: &fakeNotifier{},
	}
	env.app = &handlers.App{
		Batches:  env.batches,
		Jobs:     env.jobs,
		Profiles: env.profiles,
		Content:  env.content,
		Notifier: env.notifier,
		Logger:   zerolog.New(io.Discard),
	}
	env.handler = httpapi.NewRouter(env.app, nil)
	return env
}

func (e *testEnv) addProfile(id, userID string) {
	e.profiles.profiles[id] = &domain.Profile{ID: id, UserID: userID, BrandName: "Acme"}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestGenerationsCreateEnqueuesBatchAndJob(t *testing.T) {
	env := newTestEnv()
	env.addProfile("p1", "u1")

	req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(`{"user_id":"u1","profile_id":"p1"}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	batchID, _ := body["batch_id"].(string)
	if batchID == "" {
		t.Fatal("response missing batch_id")
	}
	if body["status"] != string(domain.BatchStatusPending) {
		t.Fatalf("status = %v, want PENDING", body["status"])
	}

	if _, ok := env.batches.batches[batchID]; !ok {
		t.Fatal("batch row was not created")
	}
	if len(env.jobs.created) != 1 {
		t.Fatalf("jobs created = %d, want 1", len(env.jobs.created))
	}
	job := env.jobs.created[0]
	if job.Type != domain.JobTypeGenerate || job.Status != domain.JobStatusPending {
		t.Fatalf("job = %+v", job)
	}
	payload, err := domain.DecodeGeneratePayload(job.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.BatchID != batchID || payload.UserID != "u1" || payload.ProfileID != "p1" {
		t.Fatalf("payload = %+v", payload)
	}
	if len(env.notifier.ids) != 1 || env.notifier.ids[0] != job.ID {
		t.Fatalf("notified ids = %v, want [%s]", env.notifier.ids, job.ID)
	}
}

func TestGenerationsCreateSucceedsWhenNotifyFails(t *testing.T) {
	env := newTestEnv()
	env.addProfile("p1", "u1")
	env.notifier.err = errors.New("channel down")

	req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(`{"user_id":"u1","profile_id":"p1"}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 despite notify failure", rr.Code)
	}
	if len(env.jobs.created) != 1 {
		t.Fatalf("jobs created = %d, want 1", len(env.jobs.created))
	}
}

func TestGenerationsCreateFailsBatchWhenJobInsertFails(t *testing.T) {
	env := newTestEnv()
	env.addProfile("p1", "u1")
	env.jobs.createErr = errors.New("insert refused")

	req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(`{"user_id":"u1","profile_id":"p1"}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var failed *domain.GenerationBatch
	for _, b := range env.batches.batches {
		failed = b
	}
	if failed == nil {
		t.Fatal("batch row missing")
	}
	if failed.Status != domain.BatchStatusFailed || failed.ErrorMessage == "" {
		t.Fatalf("batch left as %s (%q), want FAILED with a message", failed.Status, failed.ErrorMessage)
	}
	if len(env.notifier.ids) != 0 {
		t.Fatalf("notified ids = %v, want none", env.notifier.ids)
	}
}

func TestGenerationsCreateRejectsMissingFields(t *testing.T) {
	env := newTestEnv()

	for _, body := range []string{`{}`, `{"user_id":"u1"}`, `{"profile_id":"p1"}`, `not json`} {
		req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(body))
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
	if len(env.jobs.created) != 0 {
		t.Fatalf("jobs created = %d, want 0", len(env.jobs.created))
	}
}

func TestGenerationsCreateUnknownProfile(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(`{"user_id":"u1","profile_id":"ghost"}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGenerationsCreateProfileOwnedByAnotherUser(t *testing.T) {
	env := newTestEnv()
	env.addProfile("p1", "someone-else")

	req := httptest.NewRequest("POST", "/v1/generations", strings.NewReader(`{"user_id":"u1","profile_id":"p1"}`))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if len(env.jobs.created) != 0 {
		t.Fatal("job created for foreign profile")
	}
}

func TestGenerationsGetPendingBatch(t *testing.T) {
	env := newTestEnv()
	env.batches.batches["b1"] = &domain.GenerationBatch{
		ID:        "b1",
		UserID:    "u1",
		ProfileID: "p1",
		Status:    domain.BatchStatusPending,
		CreatedAt: time.Now(),
	}

	req := httptest.NewRequest("GET", "/v1/generations/b1", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != string(domain.BatchStatusPending) {
		t.Fatalf("status = %v", body["status"])
	}
	if _, ok := body["items"]; ok {
		t.Fatal("pending batch should not carry items")
	}
	if _, ok := body["error_message"]; ok {
		t.Fatal("pending batch should not carry error_message")
	}
}

func TestGenerationsGetCompletedBatchIncludesItems(t *testing.T) {
	env := newTestEnv()
	env.batches.batches["b1"] = &domain.GenerationBatch{
		ID:     "b1",
		Status: domain.BatchStatusCompleted,
	}
	env.content.ideas["b1"] = []domain.ContentIdea{
		{ID: "c1", BatchID: "b1", Title: "Spring sale", Body: "Save 20%", Tags: []string{"sale"}, ReviewStatus: domain.ReviewStatusAwaiting},
		{ID: "c2", BatchID: "b1", Title: "New arrivals", Body: "Fresh stock", ReviewStatus: domain.ReviewStatusAwaiting},
	}

	req := httptest.NewRequest("GET", "/v1/generations/b1", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("items = %#v, want 2 entries", body["items"])
	}
	first, _ := items[0].(map[string]any)
	if first["title"] != "Spring sale" || first["review_status"] != string(domain.ReviewStatusAwaiting) {
		t.Fatalf("first item = %#v", first)
	}
}

func TestGenerationsGetFailedBatchCarriesError(t *testing.T) {
	env := newTestEnv()
	env.batches.batches["b1"] = &domain.GenerationBatch{
		ID:           "b1",
		Status:       domain.BatchStatusFailed,
		ErrorMessage: "model returned no usable items",
	}

	req := httptest.NewRequest("GET", "/v1/generations/b1", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	body := decodeBody(t, rr)
	if body["error_message"] != "model returned no usable items" {
		t.Fatalf("error_message = %v", body["error_message"])
	}
	if _, ok := body["items"]; ok {
		t.Fatal("failed batch should not carry items")
	}
}

func TestGenerationsGetUnknownBatch(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest("GET", "/v1/generations/ghost", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGenerationsCancelSetsFlag(t *testing.T) {
	env := newTestEnv()
	env.batches.batches["b1"] = &domain.GenerationBatch{ID: "b1", Status: domain.BatchStatusProcessing}

	req := httptest.NewRequest("POST", "/v1/generations/b1/cancel", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if !env.batches.batches["b1"].CancelRequested {
		t.Fatal("cancel flag not set")
	}
}

func TestGenerationsCancelTerminalBatchConflicts(t *testing.T) {
	env := newTestEnv()
	env.batches.batches["b1"] = &domain.GenerationBatch{ID: "b1", Status: domain.BatchStatusCompleted}

	req := httptest.NewRequest("POST", "/v1/generations/b1/cancel", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if env.batches.batches["b1"].CancelRequested {
		t.Fatal("cancel flag set on terminal batch")
	}
}
