// Package anonymize masks personal data in standardized conversations.
//
// The Coordinator deep-copies each conversation, sends all of its message
// contents to the anonymization oracle in one separator-joined batch, splits
// the answer back onto the messages by position and replaces author display
// names with per-conversation aliases (ALIAS_1, ALIAS_2, ...). Conversations
// in one call are processed concurrently with bounded fan-out.
package anonymize
