package rotate

// tileSize is the edge length of the square tile used by the 90°/270°
// transpose, chosen to keep both the read and write working sets inside
// L1 cache on the target SoCs.
const tileSize = 8

const bpp = 3

// rotateCPU0 copies src to dst verbatim; 0° is a straight memcpy.
func rotateCPU0(dst, src []byte) {
	copy(dst, src)
}

// rotateCPU180 reads back-to-front and writes front-to-back, one pixel
// (3 bytes) at a time.
func rotateCPU180(dst, src []byte, width, height int) {
	total := width * height
	for i := 0; i < total; i++ {
		srcOff := (total - 1 - i) * bpp
		dstOff := i * bpp
		dst[dstOff] = src[srcOff]
		dst[dstOff+1] = src[srcOff+1]
		dst[dstOff+2] = src[srcOff+2]
	}
}

// rotateCPU90 transposes an W×H image of 90°, producing an H×W output, in
// tileSize×tileSize tiles so both source and destination access stay
// cache-friendly.
func rotateCPU90(dst, src []byte, width, height int) {
	// Output pixel (x,y) in the rotated H×W image comes from source
	// pixel (y, height-1-x) for a 90° clockwise rotation.
	for ty := 0; ty < height; ty += tileSize {
		for tx := 0; tx < width; tx += tileSize {
			yEnd := min(ty+tileSize, height)
			xEnd := min(tx+tileSize, width)
			for sy := ty; sy < yEnd; sy++ {
				for sx := tx; sx < xEnd; sx++ {
					srcOff := (sy*width + sx) * bpp
					dx := height - 1 - sy
					dy := sx
					dstOff := (dy*height + dx) * bpp
					dst[dstOff] = src[srcOff]
					dst[dstOff+1] = src[srcOff+1]
					dst[dstOff+2] = src[srcOff+2]
				}
			}
		}
	}
}

// rotateCPU270 is the mirror of rotateCPU90 for a 270° clockwise (90°
// counter-clockwise) rotation.
func rotateCPU270(dst, src []byte, width, height int) {
	for ty := 0; ty < height; ty += tileSize {
		for tx := 0; tx < width; tx += tileSize {
			yEnd := min(ty+tileSize, height)
			xEnd := min(tx+tileSize, width)
			for sy := ty; sy < yEnd; sy++ {
				for sx := tx; sx < xEnd; sx++ {
					srcOff := (sy*width + sx) * bpp
					dx := sy
					dy := width - 1 - sx
					dstOff := (dy*height + dx) * bpp
					dst[dstOff] = src[srcOff]
					dst[dstOff+1] = src[srcOff+1]
					dst[dstOff+2] = src[srcOff+2]
				}
			}
		}
	}
}

// rotateCPUNaive is the reference rotator used by tests to cross-check the
// tiled 90°/270° implementations pixel-for-pixel.
func rotateCPUNaive(dst, src []byte, width, height, degrees int) {
	switch degrees {
	case 0:
		rotateCPU0(dst, src)
	case 180:
		rotateCPU180(dst, src, width, height)
	case 90:
		for sy := 0; sy < height; sy++ {
			for sx := 0; sx < width; sx++ {
				srcOff := (sy*width + sx) * bpp
				dx := height - 1 - sy
				dy := sx
				dstOff := (dy*height + dx) * bpp
				dst[dstOff] = src[srcOff]
				dst[dstOff+1] = src[srcOff+1]
				dst[dstOff+2] = src[srcOff+2]
			}
		}
	case 270:
		for sy := 0; sy < height; sy++ {
			for sx := 0; sx < width; sx++ {
				srcOff := (sy*width + sx) * bpp
				dx := sy
				dy := width - 1 - sx
				dstOff := (dy*height + dx) * bpp
				dst[dstOff] = src[srcOff]
				dst[dstOff+1] = src[srcOff+1]
				dst[dstOff+2] = src[srcOff+2]
			}
		}
	}
}
