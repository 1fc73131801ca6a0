// Package framerunner provides deterministic cross-goroutine task scheduling for
// applications driven by a fixed, repeating frame cycle.
//
// One control goroutine owns the frame. Every frame it walks four phases,
// Pre, Middle, Late and End, and at each phase drains the callbacks other
// goroutines queued for it. Long-running work goes to a BackgroundExecutor,
// a single worker goroutine whose items can be cancelled in bulk by tag.
// Reproducible per-goroutine random streams live in the random package.
//
// # Quick Start
//
// Let a FrameHost own the control goroutine and tick it:
//
//	host := framerunner.NewFrameHost(&framerunner.HostConfig{FrameInterval: 16 * time.Millisecond})
//	if err := host.Start(context.Background()); err != nil {
//		return err
//	}
//	defer host.Stop()
//
//	scheduler := host.Scheduler()
//	scheduler.InvokeEndFrame(func(ctx context.Context) {
//		// runs on the control goroutine at the end of the next frame
//	})
//
// Or drive a scheduler from your own loop:
//
//	scheduler := framerunner.NewFrameScheduler(nil)
//	if err := scheduler.Init(); err != nil { // binds this goroutine
//		return err
//	}
//	for running {
//		if err := scheduler.Tick(); err != nil {
//			return err
//		}
//	}
//	scheduler.Shutdown()
//
// # Key Concepts
//
// FrameScheduler: the phase state machine. InvokeBeforeFrame, InvokeNextFrame
// and InvokeEndFrame queue callbacks for the Pre, Middle and End phases from
// any goroutine; Subscribe and SubscribeOnce register phase subscribers.
//
// BackgroundExecutor: serializes work onto one worker goroutine. Submission
// and CancelAll are control-goroutine operations. Cancellation of the item in
// flight is cooperative: its context is cancelled and the queue moves on to a
// fresh worker; long callbacks should call Checkpoint.
//
// # Thread Safety
//
// Callbacks drained by the scheduler run sequentially on the control
// goroutine, so state owned by the frame needs no locks. A panic in one
// callback is reported to the FaultHandler and never stops the drain.
package framerunner
