// Package threat turns an uploaded CSV of security-threat records into
// aggregate counts.
//
// The package has no I/O beyond reading the supplied io.Reader and no
// dependency on the web or storage layers. The pipeline is:
//
//  1. [Parse] or [ParseReader] splits raw text into [Record] values keyed by
//     the trimmed header names.
//  2. [Aggregate] walks the records once and produces a [Summary]: a severity
//     histogram, per-attack-type counters and the list of detection confidence
//     scores.
//
// # Recognized columns
//
//	severity          critical | high | medium | low (other values get their own bucket)
//	threat_type       data_poisoning | prompt_injection | model_inversion (others ignored)
//	status            "successful" marks a successful attack
//	confidence_score  float; unparsable values are skipped
//
// Any other column is kept on the Record but ignored by the aggregator.
//
// # Tolerance
//
// Nothing in a row can abort aggregation. Short rows simply lack columns, long
// rows lose their extra fields, unknown attack types are dropped and bad
// numbers are skipped. [AggregateWithDiagnostics] reports what was tolerated.
//
// The static remediation guidance shown next to each attack type lives in
// [Catalog], loaded from an embedded YAML document. The same document carries
// weighted indicator phrases that [Catalog.Classify] uses to label a single
// piece of free text.
package threat
