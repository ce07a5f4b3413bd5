package api

// 文档注释：geohash 编码（base32）
// 背景：用作点判定缓存键；精度 9 字符约 4.8m×4.8m，格内各点共享一次判定结果。
// 约束：仅用于缓存键，不参与几何计算。
const (
	geohashAlphabet  = "0123456789bcdefghjkmnpqrstuvwxyz"
	geohashPrecision = 9
)

func encodeGeohash(lat, lng float64, precision int) string {
	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0
	out := make([]byte, 0, precision)
	ch, bit := 0, 0
	even := true
	for len(out) < precision {
		if even {
			mid := (lngLo + lngHi) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngLo = mid
			} else {
				ch <<= 1
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latLo = mid
			} else {
				ch <<= 1
				latHi = mid
			}
		}
		even = !even
		if bit++; bit == 5 {
			out = append(out, geohashAlphabet[ch])
			ch, bit = 0, 0
		}
	}
	return string(out)
}
