// Package writer provides the asynchronous analytics pipeline.
//
// Many request handlers call Enqueue concurrently; one background worker
// drains the bounded queue and performs every backend mutation, including
// retention cleanups, so backends never see concurrent writes. Enqueue
// never blocks: when the queue is full the record is dropped and counted.
//
// # Usage
//
//	backend, _ := storage.New(&cfg.Analytics)
//	w := writer.New(backend, &writer.Config{QueueSize: 1000}, writer.WithObserver(metrics))
//	defer w.Close()
//
//	w.Enqueue(record)
//
// Query operations are delegated to the backend when it implements
// analytics.Searcher and return an analytics.CapabilityError otherwise.
package writer
