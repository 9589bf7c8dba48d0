package geo

import (
	"math"
	"testing"

	"khedma/internal/apperr"
)

var (
	casablanca = Point{Lat: 33.5731, Lon: -7.5898}
	rabat      = Point{Lat: 34.0209, Lon: -6.8416}
)

func TestDistanceIdenticalPoints(t *testing.T) {
	if d := Distance(casablanca, casablanca); d != 0 {
		t.Fatalf("distance between identical points = %f, want 0", d)
	}
}

func TestDistanceCasablancaRabat(t *testing.T) {
	d := Distance(casablanca, rabat)
	if math.Abs(d-85.2) > 1 {
		t.Fatalf("Casablanca-Rabat distance = %f km, want 85.2 +/- 1", d)
	}
	// 对称性
	if back := Distance(rabat, casablanca); math.Abs(back-d) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d, back)
	}
}

// pointAtKm 在参考点正北方向构造一个距离约 km 公里的坐标。
func pointAtKm(ref Point, km float64) Point {
	return Point{Lat: ref.Lat + km/111.195, Lon: ref.Lon}
}

func TestFindNearbyRadiusFilter(t *testing.T) {
	points := []Point{
		pointAtKm(casablanca, 25),
		pointAtKm(casablanca, 5),
		pointAtKm(casablanca, 15),
	}

	matches, err := FindNearby(casablanca, DefaultRadiusKm, points)
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Index != 1 || matches[1].Index != 2 {
		t.Fatalf("wrong order: got indexes %d,%d want 1,2", matches[0].Index, matches[1].Index)
	}
	if matches[0].DistanceKm >= matches[1].DistanceKm {
		t.Fatalf("not ascending: %f then %f", matches[0].DistanceKm, matches[1].DistanceKm)
	}
}

func TestFindNearbySkipsUnsetCoordinates(t *testing.T) {
	points := []Point{
		{}, // 未地理编码的职位
		pointAtKm(casablanca, 1),
	}

	matches, err := FindNearby(casablanca, 10000, points)
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(matches) != 1 || matches[0].Index != 1 {
		t.Fatalf("expected only the located point, got %+v", matches)
	}
}

func TestFindNearbyStableOnTies(t *testing.T) {
	same := pointAtKm(casablanca, 3)
	points := []Point{same, same, same}

	matches, err := FindNearby(casablanca, 10, points)
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	for i, m := range matches {
		if m.Index != i {
			t.Fatalf("tie order not stable: position %d has index %d", i, m.Index)
		}
	}
}

func TestFindNearbyEmptyInput(t *testing.T) {
	matches, err := FindNearby(casablanca, DefaultRadiusKm, nil)
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty result, got %+v", matches)
	}
}

func TestFindNearbyInvalidReference(t *testing.T) {
	cases := []struct {
		name   string
		ref    Point
		radius float64
	}{
		{"latitude too large", Point{Lat: 91, Lon: 0}, 20},
		{"longitude too large", Point{Lat: 0, Lon: 181}, 20},
		{"latitude NaN", Point{Lat: math.NaN(), Lon: 0}, 20},
		{"longitude infinite", Point{Lat: 0, Lon: math.Inf(1)}, 20},
		{"zero radius", casablanca, 0},
		{"negative radius", casablanca, -5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FindNearby(tc.ref, tc.radius, []Point{rabat})
			if !apperr.IsKind(err, apperr.KindInvalidArgument) {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestDisplayKmRounds(t *testing.T) {
	if got := (Match{DistanceKm: 86.6}).DisplayKm(); got != 87 {
		t.Fatalf("DisplayKm(86.6) = %d, want 87", got)
	}
	if got := (Match{DistanceKm: 0.4}).DisplayKm(); got != 0 {
		t.Fatalf("DisplayKm(0.4) = %d, want 0", got)
	}
}
