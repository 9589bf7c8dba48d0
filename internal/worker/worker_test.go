package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"khedma/internal/database"
	"khedma/internal/geo"
	"khedma/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakePublisher struct {
	channels []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func seedApplication(t *testing.T, db *gorm.DB) (database.User, database.User, database.Application) {
	t.Helper()

	candidate := database.User{Email: "amal@example.com", Role: database.RoleCandidate, Name: "Amal"}
	employer := database.User{Email: "atlas@example.com", Role: database.RoleEmployer, Name: "Atlas Services"}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	if err := db.Create(&employer).Error; err != nil {
		t.Fatalf("seed employer: %v", err)
	}

	job := database.JobPosting{Title: "Serveur", City: "Casablanca", EmployerID: employer.ID}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	app := database.Application{Status: database.ApplicationPending, CandidateID: candidate.ID, JobPostingID: job.ID}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return candidate, employer, app
}

func TestNotifySubmittedCreatesRowAndPublishes(t *testing.T) {
	db := newTestDB(t)
	_, employer, app := seedApplication(t, db)

	pub := &fakePublisher{}
	h := NewNotifyTaskHandler(db, pub, nil)

	task, err := tasks.NewApplicationSubmittedTask(app.ID, "corr-1")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	var notification database.Notification
	if err := db.First(&notification).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if notification.UserID != employer.ID {
		t.Fatalf("recipient = %d, want employer %d", notification.UserID, employer.ID)
	}
	if notification.Type != NotifyApplicationReceived {
		t.Fatalf("type = %q", notification.Type)
	}

	if len(pub.channels) != 1 {
		t.Fatalf("published %d times, want 1", len(pub.channels))
	}
	wantChannel := "user_notify:" + strconv.FormatUint(uint64(employer.ID), 10)
	if pub.channels[0] != wantChannel {
		t.Fatalf("channel = %q, want %q", pub.channels[0], wantChannel)
	}

	var msg NotificationMessage
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("unmarshal published message: %v", err)
	}
	if msg.ApplicationID != app.ID || msg.CorrelationID != "corr-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNotifyDecidedTargetsCandidate(t *testing.T) {
	db := newTestDB(t)
	candidate, _, app := seedApplication(t, db)
	if err := db.Model(&database.Application{}).Where("id = ?", app.ID).
		Update("status", database.ApplicationAccepted).Error; err != nil {
		t.Fatalf("update status: %v", err)
	}

	pub := &fakePublisher{}
	h := NewNotifyTaskHandler(db, pub, nil)

	task, err := tasks.NewApplicationDecidedTask(app.ID, "corr-2")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	var notification database.Notification
	if err := db.First(&notification).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if notification.UserID != candidate.ID {
		t.Fatalf("recipient = %d, want candidate %d", notification.UserID, candidate.ID)
	}

	var msg NotificationMessage
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("unmarshal published message: %v", err)
	}
	if msg.Status != database.ApplicationAccepted {
		t.Fatalf("status = %q, want accepted", msg.Status)
	}
}

func TestNotifyPublishFailureDoesNotRetry(t *testing.T) {
	db := newTestDB(t)
	_, _, app := seedApplication(t, db)

	pub := &fakePublisher{err: errors.New("redis down")}
	h := NewNotifyTaskHandler(db, pub, nil)

	task, err := tasks.NewApplicationSubmittedTask(app.ID, "")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	// 推送失败不应返回错误，否则 asynq 重试会重复落库。
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	var count int64
	if err := db.Model(&database.Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("notification rows = %d, want 1", count)
	}
}

func TestNotifyMissingApplicationIsSkipped(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{}
	h := NewNotifyTaskHandler(db, pub, nil)

	task, err := tasks.NewApplicationSubmittedTask(424242, "")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(pub.channels) != 0 {
		t.Fatalf("expected no publish, got %v", pub.channels)
	}
}

type fakeGeocoder struct {
	point   geo.Point
	found   bool
	err     error
	lookups []string
}

func (g *fakeGeocoder) Lookup(_ context.Context, address string) (geo.Point, bool, error) {
	g.lookups = append(g.lookups, address)
	return g.point, g.found, g.err
}

func TestGeocodeFillsCoordinates(t *testing.T) {
	db := newTestDB(t)
	job := database.JobPosting{Title: "Serveur", Address: "Boulevard Mohammed V, Casablanca"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	gc := &fakeGeocoder{point: geo.Point{Lat: 33.5731, Lon: -7.5898}, found: true}
	h := NewGeocodeTaskHandler(db, gc, nil)

	task, err := tasks.NewGeocodeJobTask(job.ID, "corr-3")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	var reloaded database.JobPosting
	if err := db.First(&reloaded, job.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if reloaded.Latitude != 33.5731 || reloaded.Longitude != -7.5898 {
		t.Fatalf("coordinates not updated: %+v", reloaded)
	}
}

func TestGeocodeNotFoundIsSoft(t *testing.T) {
	db := newTestDB(t)
	job := database.JobPosting{Title: "Serveur", Address: "an address nobody knows"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	gc := &fakeGeocoder{found: false}
	h := NewGeocodeTaskHandler(db, gc, nil)

	task, err := tasks.NewGeocodeJobTask(job.ID, "")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask should not fail on not-found: %v", err)
	}

	var reloaded database.JobPosting
	if err := db.First(&reloaded, job.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if reloaded.Latitude != 0 || reloaded.Longitude != 0 {
		t.Fatalf("coordinates should stay unset: %+v", reloaded)
	}
}

func TestGeocodeSkipsAlreadyLocated(t *testing.T) {
	db := newTestDB(t)
	job := database.JobPosting{Title: "Serveur", Address: "somewhere", Latitude: 34.0209, Longitude: -6.8416}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	gc := &fakeGeocoder{point: geo.Point{Lat: 1, Lon: 1}, found: true}
	h := NewGeocodeTaskHandler(db, gc, nil)

	task, err := tasks.NewGeocodeJobTask(job.ID, "")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(gc.lookups) != 0 {
		t.Fatalf("geocoder should not be called, got %v", gc.lookups)
	}
}

func TestGeocodeUpstreamErrorRetries(t *testing.T) {
	db := newTestDB(t)
	job := database.JobPosting{Title: "Serveur", Address: "Rabat"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	gc := &fakeGeocoder{err: errors.New("upstream timeout")}
	h := NewGeocodeTaskHandler(db, gc, nil)

	task, err := tasks.NewGeocodeJobTask(job.ID, "")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected an error so asynq retries")
	}
}
