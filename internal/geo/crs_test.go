package geo

import (
	"math"
	"testing"
)

func TestMercatorRoundTrip(t *testing.T) {
	cases := []LngLat{
		{Lng: 0, Lat: 0},
		{Lng: -122.4194, Lat: 37.7749},
		{Lng: 116.397, Lat: 39.909},
		{Lng: 151.2093, Lat: -33.8688},
	}
	for _, ll := range cases {
		back := FromMercator(ToMercator(ll))
		if !near(back.Lng, ll.Lng, 1e-9) || !near(back.Lat, ll.Lat, 1e-9) {
			t.Fatalf("%v -> %v", ll, back)
		}
	}
}

func TestMercatorKnownValues(t *testing.T) {
	p := ToMercator(LngLat{Lng: 180, Lat: 0})
	if !near(p.X, 20037508.342789244, 1e-6) || !near(p.Y, 0, 1e-6) {
		t.Fatalf("antimeridian = %+v", p)
	}
	clamped := ToMercator(LngLat{Lng: 0, Lat: 89.9})
	if !near(clamped.Y, ToMercator(LngLat{Lng: 0, Lat: MaxLatitude}).Y, 1e-6) {
		t.Fatal("latitude should clamp to MaxLatitude")
	}
}

func TestRegionTransform(t *testing.T) {
	r := Rect(-0.01, -0.01, 0.01, 0.01)
	m := RegionToMercator(r)
	if m.Area() < 4_900_000 || m.Area() > 5_000_000 {
		t.Fatalf("projected area = %v", m.Area())
	}
	back := RegionFromMercator(m)
	if !near(back.Area(), r.Area(), 1e-12) {
		t.Fatalf("inverse area = %v", back.Area())
	}
}

func TestFrame(t *testing.T) {
	f := Frame(1, 0, 0, 1)
	b, ok := f.Bounds()
	if !ok {
		t.Fatal("frame should not be empty")
	}
	if b.MinX != 0 || math.Abs(b.MaxX-ToMercator(LngLat{Lng: 1}).X) > 1e-9 || b.MaxY <= b.MinY {
		t.Fatalf("bounds = %+v", b)
	}
	if !Frame(1, 1, 0, 1).IsEmpty() {
		t.Fatal("zero-width frame must be empty")
	}
}
