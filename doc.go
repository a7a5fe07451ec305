// Package windowrecorder records one on-screen window to a video file while
// handing downscaled raw frames to an analysis consumer.
//
// # Quick Start
//
//	cfg := windowrecorder.DefaultConfig()
//	cfg.Target.Window = "firefox"
//	cfg.Output.Path = "firefox.mp4"
//
//	rec, err := windowrecorder.New(
//	    windowrecorder.WithConfig(cfg),
//	    windowrecorder.WithFrameHandler(func(f *windowrecorder.Sample) windowrecorder.Flow {
//	        // f.Data holds 192x192 RGB pixels, valid until return
//	        return windowrecorder.FlowOK
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go func() {
//	    <-sigCh
//	    rec.RequestShutdown() // drains both branches, finalizes the file
//	}()
//
//	if err := rec.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Topology
//
//	capture -> rate -> fan-out -+-> queue -> convert -> scale -> frame sink
//	                            +-> queue -> convert -> scale -> encode -> mux -> file sink
//
// The rate limiter caps the units entering the fan-out (20/s by default).
// Each branch starts at a bounded buffer, so a slow frame consumer never
// stalls the recording beyond its buffer policy.
//
// # Errors
//
// Run returns a *ResolutionError when no window matches, a
// *ConstructionError when the graph cannot be built (nothing is written),
// and a *RuntimeError when a stage fails while playing. A clean shutdown
// returns nil.
package windowrecorder
