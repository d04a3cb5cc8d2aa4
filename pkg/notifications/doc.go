// Package notifications is the core of the dispatch engine.
//
// An Orchestrator accepts a SendRequest naming a recipient, a template key,
// variables and one or more channels. For every channel it resolves the
// template from a TemplateStore, renders it, stores a PENDING Record and
// queues a DispatchJob. The queue worker runs the jobs through a
// DeliveryHandler, which hands each one to a Deliverer and moves the record
// to SENT or, once the retry policy is exhausted, to FAILED.
//
// Basic wiring:
//
//	store := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(store)
//	orch := notifications.NewOrchestrator(templates, records, enq)
//
//	w, _ := queue.NewWorker(store)
//	w.RegisterHandler(notifications.NewDeliveryHandler(records, registry))
//
// Status moves PENDING to SENT or FAILED, and SENT to READ. MarkRead is the
// exception: reading sets READ from any status.
//
// Templates use {{name}} placeholders. Missing variables render empty;
// malformed placeholders fail with a *RenderError.
package notifications
