package sim

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// packed describes the byte layout of an interleaved pixel format.
type packed struct {
	bpp        int
	r, g, b, a int // channel offsets, a < 0 when absent
}

var packedFormats = map[string]packed{
	graph.FormatRGB:  {bpp: 3, r: 0, g: 1, b: 2, a: -1},
	graph.FormatRGBA: {bpp: 4, r: 0, g: 1, b: 2, a: 3},
	graph.FormatBGRA: {bpp: 4, r: 2, g: 1, b: 0, a: 3},
}

// frameSize returns the byte size of a w x h frame in format.
func frameSize(format string, w, h int) int {
	if format == graph.FormatI420 {
		cw, ch := (w+1)/2, (h+1)/2
		return w*h + 2*cw*ch
	}
	if p, ok := packedFormats[format]; ok {
		return w * h * p.bpp
	}
	return 0
}

// convertFormat converts a packed frame to format. I420 input is only
// accepted when no conversion is needed.
func convertFormat(b *buffer, format string) (*buffer, error) {
	if b.format == format {
		return b, nil
	}
	src, ok := packedFormats[b.format]
	if !ok {
		return nil, fmt.Errorf("cannot convert from %s", b.format)
	}
	if len(b.data) < frameSize(b.format, b.width, b.height) {
		return nil, fmt.Errorf("short %s frame: %d bytes for %dx%d", b.format, len(b.data), b.width, b.height)
	}

	out := &buffer{pts: b.pts, format: format, width: b.width, height: b.height}

	if format == graph.FormatI420 {
		out.data = toI420(b.data, src, b.width, b.height)
		return out, nil
	}

	dst, ok := packedFormats[format]
	if !ok {
		return nil, fmt.Errorf("cannot convert to %s", format)
	}
	n := b.width * b.height
	out.data = make([]byte, n*dst.bpp)
	for i := 0; i < n; i++ {
		s := b.data[i*src.bpp:]
		d := out.data[i*dst.bpp:]
		d[dst.r], d[dst.g], d[dst.b] = s[src.r], s[src.g], s[src.b]
		if dst.a >= 0 {
			if src.a >= 0 {
				d[dst.a] = s[src.a]
			} else {
				d[dst.a] = 0xff
			}
		}
	}
	return out, nil
}

// toI420 converts with BT.601 limited range; chroma is taken from the
// top-left pixel of each 2x2 block.
func toI420(data []byte, src packed, w, h int) []byte {
	cw, ch := (w+1)/2, (h+1)/2
	out := make([]byte, w*h+2*cw*ch)
	yPlane := out[:w*h]
	uPlane := out[w*h : w*h+cw*ch]
	vPlane := out[w*h+cw*ch:]

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := data[(y*w+x)*src.bpp:]
			r, g, b := int(p[src.r]), int(p[src.g]), int(p[src.b])
			yPlane[y*w+x] = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			if x%2 == 0 && y%2 == 0 {
				ci := (y/2)*cw + x/2
				uPlane[ci] = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
				vPlane[ci] = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			}
		}
	}
	return out
}

// scaleFrame resizes with nearest-neighbour sampling.
func scaleFrame(b *buffer, w, h int) (*buffer, error) {
	if b.width == w && b.height == h {
		return b, nil
	}
	if b.width <= 0 || b.height <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", b.width, b.height)
	}
	if len(b.data) < frameSize(b.format, b.width, b.height) {
		return nil, fmt.Errorf("short %s frame: %d bytes for %dx%d", b.format, len(b.data), b.width, b.height)
	}

	out := &buffer{pts: b.pts, format: b.format, width: w, height: h}

	if b.format == graph.FormatI420 {
		sw, sh := b.width, b.height
		scw, sch := (sw+1)/2, (sh+1)/2
		cw, ch := (w+1)/2, (h+1)/2
		out.data = make([]byte, 0, w*h+2*cw*ch)
		out.data = append(out.data, scalePlane(b.data[:sw*sh], sw, sh, w, h, 1)...)
		out.data = append(out.data, scalePlane(b.data[sw*sh:sw*sh+scw*sch], scw, sch, cw, ch, 1)...)
		out.data = append(out.data, scalePlane(b.data[sw*sh+scw*sch:], scw, sch, cw, ch, 1)...)
		return out, nil
	}

	p, ok := packedFormats[b.format]
	if !ok {
		return nil, fmt.Errorf("cannot scale %s", b.format)
	}
	out.data = scalePlane(b.data, b.width, b.height, w, h, p.bpp)
	return out, nil
}

func scalePlane(src []byte, sw, sh, w, h, bpp int) []byte {
	dst := make([]byte, w*h*bpp)
	for y := 0; y < h; y++ {
		sy := y * sh / h
		for x := 0; x < w; x++ {
			sx := x * sw / w
			copy(dst[(y*w+x)*bpp:(y*w+x+1)*bpp], src[(sy*sw+sx)*bpp:])
		}
	}
	return dst
}
