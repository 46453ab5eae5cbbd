// Package knowledge defines knowledge records and extracts them from
// anonymized conversations.
//
// Every record belongs to exactly one Category and carries a Payload whose
// concrete type is fixed by that category. Payload is a closed interface: the
// five payload structs in this package are its only implementations, and
// code that needs per-category behavior switches on the concrete type.
package knowledge
