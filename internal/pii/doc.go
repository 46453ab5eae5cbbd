// Package pii detects and masks personal data and credentials in free text.
//
// The masker runs a table of regular-expression rules over the input and
// replaces every match with a category placeholder such as [EMAIL] or
// [SECRET]. Overlapping matches are merged so a span is masked once. Findings
// carry rule IDs and offsets but never the matched value.
//
// It backs the local anonymization oracle and the last-chance scrub applied
// to rendered documents before they leave the process.
package pii
