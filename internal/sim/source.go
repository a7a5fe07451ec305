package sim

import (
	"context"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// runSource is the capture streaming goroutine. It produces BGRA frames at
// SourceRate until end-of-stream is requested or the instance stops.
func (i *Instance) runSource(ctx context.Context) error {
	e := i.source
	cfg, _ := e.node.Config().(graph.CaptureConfig)
	w, h := i.opts.Width, i.opts.Height
	if cfg.Width > 0 && cfg.Height > 0 {
		w, h = cfg.Width, cfg.Height
	}

	period := time.Second / time.Duration(i.opts.SourceRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-i.eos:
			i.logger.Debug("sim: source pushing end of stream", "frames", seq)
			return e.pushOut(0, &buffer{eos: true, pts: time.Duration(seq) * period})

		case <-ticker.C:
			b := &buffer{
				pts:    time.Duration(seq) * period,
				format: graph.FormatBGRA,
				width:  w,
				height: h,
				data:   testPattern(seq, w, h),
			}
			seq++
			e.units.Add(1)
			if err := e.pushOut(0, b); err != nil {
				return err
			}
		}
	}
}

// testPattern draws a gradient with a moving white bar.
func testPattern(seq uint64, w, h int) []byte {
	data := make([]byte, w*h*4)
	bar := int(seq*4) % w
	for y := 0; y < h; y++ {
		row := data[y*w*4 : (y+1)*w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			if x >= bar && x < bar+8 {
				px[0], px[1], px[2] = 0xff, 0xff, 0xff
			} else {
				px[0] = byte(x * 255 / w)
				px[1] = byte(y * 255 / h)
				px[2] = byte(seq)
			}
			px[3] = 0xff
		}
	}
	return data
}
