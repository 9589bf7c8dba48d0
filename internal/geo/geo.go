package geo

import (
	"math"
	"sort"

	"khedma/internal/apperr"
)

// EarthRadiusKm 为地球平均半径，haversine 距离计算使用。
const EarthRadiusKm = 6371.0

// DefaultRadiusKm 是附近职位检索的默认半径（公里）。
const DefaultRadiusKm = 20.0

// Point 表示一个经纬度坐标。零值视为“未设置”：
// 职位在完成地理编码前坐标为 (0,0)，不能当作赤道大西洋上的点参与计算。
type Point struct {
	Lat float64
	Lon float64
}

// IsZero 报告坐标是否未设置。
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

func (p Point) valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return false
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Match 将候选集中的一个条目与其到参考点的距离配对。
// Index 指向调用方传入切片中的原始位置。
type Match struct {
	Index      int
	DistanceKm float64
}

// DisplayKm 返回用于展示的整公里距离；过滤始终使用未取整的值。
func (m Match) DisplayKm() int {
	return int(math.Round(m.DistanceKm))
}

// Distance 计算两点间的大圆（haversine）距离，单位公里。
func Distance(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FindNearby 在候选坐标集中筛选出距参考点不超过 radiusKm 的条目，
// 按距离升序返回（稳定排序，距离相同时保持输入顺序）。
// 坐标未设置的条目被静默跳过。纯函数，不访问存储。
func FindNearby(ref Point, radiusKm float64, points []Point) ([]Match, error) {
	if !ref.valid() {
		return nil, apperr.InvalidArgument("reference latitude/longitude out of bounds")
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm <= 0 {
		return nil, apperr.InvalidArgument("radius must be a positive number of kilometers")
	}

	matches := make([]Match, 0, len(points))
	for i, p := range points {
		if p.IsZero() || !p.valid() {
			continue
		}
		d := Distance(ref, p)
		if d > radiusKm {
			continue
		}
		matches = append(matches, Match{Index: i, DistanceKm: d})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})

	return matches, nil
}
