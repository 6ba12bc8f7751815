// Package core provides the analysis workflow for uploaded threat logs.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is used by the web handlers and the threatctl CLI alike.
//
// # Architecture
//
//   - Session: one browser's current dataset and current analysis. Loading a
//     new file clears the previous analysis.
//   - SessionStore: in-memory sessions keyed by a random ID, evicted after an
//     idle TTL.
//   - Service: the entry point for every operation (load, analyze, reset,
//     history, catalog).
//   - HistoryStore: a record of past analyses. Only derived counters are kept,
//     never the uploaded rows.
//   - Publisher: announces completed analyses (NATS in production).
//
// # Flow
//
//  1. The client obtains a session via [Service.EnsureSession]
//  2. [Service.LoadFile] parses the upload under the [UploadLimiter]
//  3. [Service.Analyze] aggregates the dataset with the threat package
//  4. The run is written to the [HistoryStore] and handed to the [Publisher]
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix for support reference:
//
//   - FILE: upload problems (size, type, empty)
//   - SES, ANL: session and analysis state
//   - UPL: upload slot, cancellation, timeout
//   - DB: history database connectivity
//   - RATE: request throttling
package core
