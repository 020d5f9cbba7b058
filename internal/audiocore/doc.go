// Package audiocore holds the types shared by the shared memory audio engine:
// sample types, interleaved sample blocks, self-contained audio units, the
// error taxonomy and the interface a real-time audio backend implements.
//
// # Architecture Overview
//
// The engine is split into leaf-first subpackages:
//
//   - ringbuffer: fixed capacity sample store in a named shared memory region
//     with monotonic write and read indices
//   - channelmap: mapping of 1-based hardware channels to and from logical
//     buffer channels, silence fill and mono broadcast
//   - stream: Recorder and Player state machines driven by a Backend callback
//   - backend/malgo and backend/loopback: Backend implementations
//
// The monitor package observes a running stream from another goroutine or
// process through a read-only ringbuffer.View.
//
// # Concurrency
//
// Each buffer has exactly one writer. The real-time callback is the writer
// for a Recorder and the only reader that advances the read index for a
// Player. Indices and the running/finished signals live in the shared region
// header and are accessed atomically, so readers in other processes never
// need a lock and never see frames past the write index.
//
// Code reachable from a Backend callback must not block, log or allocate.
//
// # Error Handling
//
// Errors carry a category from the internal errors package. Callers match
// them with errors.Is against the sentinels in this package:
//
//	if errors.Is(err, audiocore.ErrCapacity) {
//	    // requested transfer does not fit the buffer
//	}
package audiocore
