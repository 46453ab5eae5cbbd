// Package conversation models team conversations and standardizes raw chat
// history or free text into them.
//
// A Conversation is an ordered list of Messages with dense zero-based indexes.
// Thread replies are spliced directly after their root and point back to it
// through ParentIndex. Sources implement ChatSource; the package ships a Slack
// Web API client, a single-thread permalink source and a JSON export reader.
package conversation
