// Package pipeline turns one conversation into at most one published
// knowledge document.
//
// A run moves through six stages in order: standardize, anonymize,
// extract, match, render and publish. Every run ends in exactly one
// terminal status:
//
//   - published: a change request was opened
//   - ignored: the matcher judged the knowledge a duplicate
//   - not-extractable: the conversation was empty or too small
//   - dry-run: the document was rendered but not published
//   - failed: a stage failed; the Result carries the stage and error kind
//
// Failed runs return both a Result and a *StageError. Match decision
// failures and label failures are recovered where they happen and never
// fail a run.
package pipeline
