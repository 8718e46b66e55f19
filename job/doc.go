// Package job defines the job payload, the persisted record, the leased
// handle workers operate on and the registry that maps job types to
// handlers.
//
// # Payload
//
// A [Payload] is the immutable description of work. It is serialized as a
// JSON object and stored verbatim:
//
//	{"displayName":"send-email","job":"send-email","maxTries":null,
//	 "timeout":null,"timeoutAt":null,"data":{"to":"a@b.com"}}
//
// Args maps are encoded with sorted keys, so an identical job type and
// argument map always produce identical bytes. Backends rely on that for
// duplicate detection.
//
// # Handle
//
// A [Handle] wraps a leased [Record]. It carries the terminal flags
// deleted, released and failed, and calls back into its backend through the
// narrow [Owner] capability:
//
//	leased → deleted
//	leased → released
//	leased → failed (deleted first)
//
// # Registry
//
// [Registry] maps job type names to [Handler] values. Register typed
// definitions at startup via [RegisterDefinition]:
//
//	var SendEmail = job.NewDefinition("send-email",
//	    func(ctx context.Context, h *job.Handle, in EmailInput) error {
//	        if err := mailer.Send(in.To); err != nil {
//	            return err
//	        }
//	        return h.Delete(ctx)
//	    },
//	)
//
//	job.RegisterDefinition(registry, SendEmail)
package job
