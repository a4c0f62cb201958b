// Package limits provides admission control for upstream calls.
//
// The relay forwards to a single backend that tolerates only a few
// simultaneous requests. ConcurrencyGate is the seam where that ceiling is
// enforced: the chat handler acquires a slot before calling the upstream and
// releases it when the response, streamed or not, is finished. Key
// validation and authentication never pass through the gate.
//
// # Usage
//
//	gate := limits.NewConcurrencyGate(cfg.Proxy.MaxConcurrentRequests,
//	    limits.WithRejectionRecorder(collector))
//
//	if err := gate.Acquire(r.Context()); err != nil {
//	    proxy.WriteErrorResponse(w, types.NewServerBusyError("server busy"))
//	    return
//	}
//	defer gate.Release()
package limits
