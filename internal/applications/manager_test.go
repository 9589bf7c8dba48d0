package applications

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"khedma/internal/apperr"
	"khedma/internal/auth"
	"khedma/internal/database"
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

type recordingNotifier struct {
	submitted []uint
	decided   []uint
}

func (n *recordingNotifier) ApplicationSubmitted(_ context.Context, id uint) error {
	n.submitted = append(n.submitted, id)
	return nil
}

func (n *recordingNotifier) ApplicationDecided(_ context.Context, id uint) error {
	n.decided = append(n.decided, id)
	return nil
}

type fixture struct {
	db       *gorm.DB
	manager  *Manager
	notifier *recordingNotifier

	candidate auth.Actor
	employer  auth.Actor
	job       database.JobPosting
}

func newFixture(t *testing.T, allowRedecision bool) *fixture {
	t.Helper()
	db := newTestDB(t)

	candidate := database.User{Email: "amal@example.com", Role: database.RoleCandidate, Name: "Amal", Phone: "0600000001"}
	employer := database.User{Email: "atlas@example.com", Role: database.RoleEmployer, Name: "Atlas Services", Phone: "0600000002"}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	if err := db.Create(&employer).Error; err != nil {
		t.Fatalf("seed employer: %v", err)
	}

	job := database.JobPosting{Title: "Serveur", Category: "restauration", City: "Casablanca", EmployerID: employer.ID}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	notifier := &recordingNotifier{}
	return &fixture{
		db:        db,
		manager:   NewManager(NewGormStore(db), notifier, nil, allowRedecision),
		notifier:  notifier,
		candidate: auth.Actor{ID: candidate.ID, Role: database.RoleCandidate},
		employer:  auth.Actor{ID: employer.ID, Role: database.RoleEmployer},
		job:       job,
	}
}

func TestSubmitCreatesPendingApplication(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "I am interested")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if app.Status != database.ApplicationPending {
		t.Fatalf("status = %q, want pending", app.Status)
	}
	if app.CandidateID != f.candidate.ID || app.JobPostingID != f.job.ID {
		t.Fatalf("wrong references: %+v", app)
	}
	if len(f.notifier.submitted) != 1 || f.notifier.submitted[0] != app.ID {
		t.Fatalf("expected one submitted notification, got %v", f.notifier.submitted)
	}
}

func TestSubmitDuplicateConflict(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.manager.Submit(ctx, f.candidate, f.job.ID, ""); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second Submit: expected Conflict, got %v", err)
	}

	var count int64
	if err := f.db.Model(&database.Application{}).Count(&count).Error; err != nil {
		t.Fatalf("count applications: %v", err)
	}
	if count != 1 {
		t.Fatalf("application rows = %d, want 1", count)
	}
}

func TestSubmitRoleAndExistenceChecks(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.manager.Submit(ctx, f.employer, f.job.ID, ""); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("employer Submit: expected Forbidden, got %v", err)
	}
	if _, err := f.manager.Submit(ctx, f.candidate, 9999, ""); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("missing job: expected NotFound, got %v", err)
	}
	if _, err := f.manager.Submit(ctx, f.candidate, 0, ""); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("zero job id: expected InvalidArgument, got %v", err)
	}
}

func TestDecideAcceptsAndNotifies(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	decided, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationAccepted)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != database.ApplicationAccepted {
		t.Fatalf("status = %q, want accepted", decided.Status)
	}
	if len(f.notifier.decided) != 1 {
		t.Fatalf("expected one decided notification, got %v", f.notifier.decided)
	}

	var stored database.Application
	if err := f.db.First(&stored, app.ID).Error; err != nil {
		t.Fatalf("reload application: %v", err)
	}
	if stored.Status != database.ApplicationAccepted {
		t.Fatalf("stored status = %q, want accepted", stored.Status)
	}
}

func TestDecidePreconditions(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// 求职者无权改判
	if _, err := f.manager.Decide(ctx, f.candidate, app.ID, database.ApplicationAccepted); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("candidate Decide: expected Forbidden, got %v", err)
	}

	// 其他雇主不拥有该职位
	other := database.User{Email: "other@example.com", Role: database.RoleEmployer}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatalf("seed other employer: %v", err)
	}
	otherActor := auth.Actor{ID: other.ID, Role: database.RoleEmployer}
	if _, err := f.manager.Decide(ctx, otherActor, app.ID, database.ApplicationAccepted); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("non-owner Decide: expected Forbidden, got %v", err)
	}

	if _, err := f.manager.Decide(ctx, f.employer, 9999, database.ApplicationAccepted); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("missing application: expected NotFound, got %v", err)
	}
	if _, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationPending); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("pending target: expected InvalidArgument, got %v", err)
	}
	if _, err := f.manager.Decide(ctx, f.employer, app.ID, "archived"); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("unknown target: expected InvalidArgument, got %v", err)
	}
}

func TestDecideRedecisionPolicy(t *testing.T) {
	t.Run("locked by default", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()

		app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationAccepted); err != nil {
			t.Fatalf("first Decide: %v", err)
		}
		if _, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationRejected); !apperr.IsKind(err, apperr.KindConflict) {
			t.Fatalf("re-decide: expected Conflict, got %v", err)
		}
	})

	t.Run("allowed when configured", func(t *testing.T) {
		f := newFixture(t, true)
		ctx := context.Background()

		app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationAccepted); err != nil {
			t.Fatalf("first Decide: %v", err)
		}
		decided, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationRejected)
		if err != nil {
			t.Fatalf("re-decide: %v", err)
		}
		if decided.Status != database.ApplicationRejected {
			t.Fatalf("status = %q, want rejected", decided.Status)
		}
	})
}

func TestListForCandidateEndToEnd(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	app, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "I am interested")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.manager.Decide(ctx, f.employer, app.ID, database.ApplicationAccepted); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	apps, err := f.manager.ListForCandidate(ctx, f.candidate)
	if err != nil {
		t.Fatalf("ListForCandidate: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("got %d applications, want 1", len(apps))
	}
	got := apps[0]
	if got.Status != database.ApplicationAccepted {
		t.Fatalf("status = %q, want accepted", got.Status)
	}
	if got.CoverLetter != "I am interested" {
		t.Fatalf("cover letter = %q", got.CoverLetter)
	}
	if got.JobPosting.ID != f.job.ID {
		t.Fatalf("job not preloaded: %+v", got.JobPosting)
	}
	if got.JobPosting.Employer.Name != "Atlas Services" || got.JobPosting.Employer.Phone != "0600000002" {
		t.Fatalf("employer contact not enriched: %+v", got.JobPosting.Employer)
	}

	if _, err := f.manager.ListForCandidate(ctx, f.employer); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("employer ListForCandidate: expected Forbidden, got %v", err)
	}
}

func TestListForJobOwnershipAndOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	second := database.User{Email: "karim@example.com", Role: database.RoleCandidate, Name: "Karim"}
	if err := f.db.Create(&second).Error; err != nil {
		t.Fatalf("seed second candidate: %v", err)
	}
	secondActor := auth.Actor{ID: second.ID, Role: database.RoleCandidate}

	first, err := f.manager.Submit(ctx, f.candidate, f.job.ID, "")
	if err != nil {
		t.Fatalf("Submit 1: %v", err)
	}
	// 保证第二条的 created_at 不早于第一条
	if err := f.db.Model(&database.Application{}).Where("id = ?", first.ID).
		Update("created_at", gorm.Expr("datetime(created_at, '-1 minute')")).Error; err != nil {
		t.Fatalf("backdate first application: %v", err)
	}
	if _, err := f.manager.Submit(ctx, secondActor, f.job.ID, ""); err != nil {
		t.Fatalf("Submit 2: %v", err)
	}

	apps, err := f.manager.ListForJob(ctx, f.employer, f.job.ID)
	if err != nil {
		t.Fatalf("ListForJob: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("got %d applications, want 2", len(apps))
	}
	if apps[0].CandidateID != second.ID {
		t.Fatalf("expected newest first, got candidate %d", apps[0].CandidateID)
	}
	if apps[0].Candidate.Name != "Karim" {
		t.Fatalf("candidate not preloaded: %+v", apps[0].Candidate)
	}

	other := database.User{Email: "intruder@example.com", Role: database.RoleEmployer}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatalf("seed other employer: %v", err)
	}
	otherActor := auth.Actor{ID: other.ID, Role: database.RoleEmployer}
	if _, err := f.manager.ListForJob(ctx, otherActor, f.job.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("non-owner ListForJob: expected Forbidden, got %v", err)
	}
	if _, err := f.manager.ListForJob(ctx, f.candidate, f.job.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("candidate ListForJob: expected Forbidden, got %v", err)
	}
}
