package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"khedma/internal/api/middleware"
	"khedma/internal/auth"
	"khedma/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// 卡萨布兰卡市中心，职位测试的参考点。
const (
	casaLat = 33.5731
	casaLon = -7.5898
)

// jobAtKm 在参考点正北方向 km 公里处生成一个职位。
func jobAtKm(employerID uint, title string, km float64) database.JobPosting {
	return database.JobPosting{
		Title:      title,
		Category:   "services",
		City:       "Casablanca",
		Latitude:   casaLat + km/111.195,
		Longitude:  casaLon,
		EmployerID: employerID,
	}
}

func seedEmployer(t *testing.T, db *gorm.DB) database.User {
	t.Helper()
	employer := database.User{
		Email:        "employer@example.com",
		PasswordHash: "x",
		Role:         database.RoleEmployer,
		Name:         "Atlas Services",
	}
	if err := db.Create(&employer).Error; err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	return employer
}

type listEnvelope struct {
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Data    []json.RawMessage `json:"data"`
}

type nearbyJob struct {
	ID         uint     `json:"id"`
	Title      string   `json:"title"`
	DistanceKm *float64 `json:"distance_km"`
}

func performNearby(t *testing.T, h *JobHandler, actor auth.Actor, query string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/jobs/nearby"+query, nil)
	middleware.SetActor(c, actor)
	h.NearbyJobs(c)
	return w
}

func TestNearbyJobs_FiltersAndOrders(t *testing.T) {
	db := newTestDB(t)
	employer := seedEmployer(t, db)

	for _, job := range []database.JobPosting{
		jobAtKm(employer.ID, "25km away", 25),
		jobAtKm(employer.ID, "5km away", 5),
		jobAtKm(employer.ID, "15km away", 15),
		{Title: "no coordinates", City: "Casablanca", EmployerID: employer.ID},
	} {
		if err := db.Create(&job).Error; err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	h := NewJobHandler(db, nil, nil)
	actor := auth.Actor{ID: 42, Role: database.RoleCandidate}

	w := performNearby(t, h, actor, "?lat=33.5731&lon=-7.5898&radius=20")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var envelope listEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Count != 2 {
		t.Fatalf("expected 2 jobs within 20km, got %d", envelope.Count)
	}

	titles := make([]string, 0, 2)
	distances := make([]float64, 0, 2)
	for _, raw := range envelope.Data {
		var job nearbyJob
		if err := json.Unmarshal(raw, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.DistanceKm == nil {
			t.Fatalf("job %q missing distance_km", job.Title)
		}
		titles = append(titles, job.Title)
		distances = append(distances, *job.DistanceKm)
	}
	if titles[0] != "5km away" || titles[1] != "15km away" {
		t.Fatalf("expected ascending distance order, got %v", titles)
	}
	// 展示距离取整到整公里
	if distances[0] != 5 || distances[1] != 15 {
		t.Fatalf("expected rounded distances [5 15], got %v", distances)
	}
}

func TestNearbyJobs_FallsBackToProfileCoordinates(t *testing.T) {
	db := newTestDB(t)
	employer := seedEmployer(t, db)

	job := jobAtKm(employer.ID, "nearby job", 3)
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}

	candidate := database.User{
		Email:        "amal@example.com",
		PasswordHash: "x",
		Role:         database.RoleCandidate,
		Name:         "Amal",
		Latitude:     casaLat,
		Longitude:    casaLon,
	}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	h := NewJobHandler(db, nil, nil)
	actor := auth.Actor{ID: candidate.ID, Role: database.RoleCandidate}

	w := performNearby(t, h, actor, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var envelope listEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Count != 1 {
		t.Fatalf("expected 1 job via profile fallback, got %d", envelope.Count)
	}
}

func TestNearbyJobs_NoReferenceCoordinates(t *testing.T) {
	db := newTestDB(t)

	candidate := database.User{
		Email:        "nowhere@example.com",
		PasswordHash: "x",
		Role:         database.RoleCandidate,
		Name:         "Sans Adresse",
	}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	h := NewJobHandler(db, nil, nil)
	actor := auth.Actor{ID: candidate.ID, Role: database.RoleCandidate}

	w := performNearby(t, h, actor, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestNearbyJobs_InvalidReference(t *testing.T) {
	db := newTestDB(t)
	h := NewJobHandler(db, nil, nil)
	actor := auth.Actor{ID: 1, Role: database.RoleCandidate}

	cases := []struct {
		name  string
		query string
	}{
		{"non numeric lat", "?lat=abc&lon=-7.5"},
		{"missing lon", "?lat=33.5"},
		{"out of range lat", "?lat=91&lon=0"},
		{"bad radius", "?lat=33.5&lon=-7.5&radius=banana"},
		{"negative radius", "?lat=33.5&lon=-7.5&radius=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := performNearby(t, h, actor, tc.query)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
			}
		})
	}
}
