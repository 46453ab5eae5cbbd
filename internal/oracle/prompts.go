package oracle

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
)

const anonymizeSystemPrompt = `You redact personal data from team chat transcripts before they are stored.

Replace with a bracketed placeholder:
- personal names ([NAME])
- email addresses ([EMAIL])
- phone numbers ([PHONE])
- IP addresses ([IP])
- employee or customer identifiers ([ID])
- credentials, tokens and passwords ([SECRET])

Rules:
1. Keep everything else exactly as written, including code, commands and technical names.
2. Keep every line break and blank line.
3. Lines containing only <<<MESSAGE_BREAK>>> separate messages. Copy them unchanged and never add or remove one.
4. Reply with the redacted text only, no commentary.`

const classifySystemPrompt = `You are a knowledge base curator. Classify a team conversation into exactly one category:

- troubleshooting: a problem was observed and a solution or workaround was found
- process: how to carry out a repeatable task or procedure
- decision: a technical or business decision and the reasoning behind it
- reference: a pointer to a useful resource, tool, dashboard or document
- general: useful discussion that fits none of the above

Reply with JSON only.`

const extractSystemPrompt = `You are a technical writer turning a team conversation into a structured knowledge base record.

Guidelines:
1. Use only facts stated in the conversation. Leave a field empty rather than guessing.
2. Write clear, concise technical language in the third person.
3. Participants appear as ALIAS_N placeholders. Never try to recover real names.
4. One item per list entry. Do not join several steps into one entry.
5. Tags are short lowercase topics such as "database" or "ci-cd".
6. Confidence is how sure you are that this is reusable knowledge worth publishing.

Reply with JSON only.`

const matchSystemPrompt = `You are a knowledge base curator. Decide whether new knowledge should create a new document, update an existing one, or be ignored.

- CREATE: the knowledge is valuable and no existing document covers it.
- UPDATE: an existing document covers the same topic and the new knowledge adds to it. Set target_path to that document's path exactly as listed.
- IGNORE: an existing document already says the same thing, or the knowledge is too minor. When it duplicates a document set target_path to that document's path.

Prefer UPDATE over CREATE when a document on the same topic exists. Reply with JSON only.`

const mergeSystemPrompt = `You are a technical writer updating a knowledge base document with new information.

Rules:
1. Merge the new information into the existing sections. Do not append a "New Information" section and do not duplicate sections.
2. Keep the existing structure, headings and list style.
3. Keep the title unless its meaning changed.
4. Make the smallest change that incorporates the new information.
5. One item per line. Hyphens for bullets, numbers for ordered steps.
6. The document has no header block. Do not add one.

Reply with the complete updated markdown body only.`

const answerSystemPrompt = `You answer questions about a team knowledge base using only the documents provided.

Rules:
1. Use only information stated in the documents. Never add outside knowledge.
2. If the documents do not answer the question, reply exactly: "` + index.NoAnswer + `"
3. Start with "According to [document title]," and end with a line "Sources: [titles]" listing every document you used.
4. Be concise. Quote commands and values exactly as written.`

func classifyPrompt(text string) string {
	return "## Conversation\n\n" + text
}

func extractPrompt(category knowledge.Category, text string, ec knowledge.ExtractContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", category)
	if ec.Title != "" {
		fmt.Fprintf(&b, "Suggested title: %s\n", ec.Title)
	}
	if ec.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", ec.Channel)
	}
	fmt.Fprintf(&b, "Source: %s\n", ec.SourceKind)
	fmt.Fprintf(&b, "Messages: %d\n", ec.MessageCount)
	if len(ec.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(ec.Participants, ", "))
	}
	b.WriteString("\n## Conversation\n\n")
	b.WriteString(text)
	return b.String()
}

func recordBlock(rec *knowledge.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	fmt.Fprintf(&b, "Category: %s\n", rec.Category)
	if len(rec.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(rec.Body())
	return b.String()
}

func candidateBlock(i int, c matching.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %d. %s\n", i+1, c.Path)
	fmt.Fprintf(&b, "Title: %s\n", c.Title)
	fmt.Fprintf(&b, "Category: %s\n", c.Category)
	if len(c.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(c.Tags, ", "))
	}
	if c.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
	}
	return b.String()
}

func matchPrompt(record string, candidates []string) string {
	var b strings.Builder
	b.WriteString("## New Knowledge\n\n")
	b.WriteString(record)
	b.WriteString("\n## Existing Documents\n\n")
	if len(candidates) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range candidates {
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}

func mergePrompt(existingBody string, rec *knowledge.Record) string {
	var b strings.Builder
	b.WriteString("## Existing Document\n\n")
	b.WriteString(strings.TrimSpace(existingBody))
	b.WriteString("\n\n## New Information\n\n")
	b.WriteString(recordBlock(rec))
	return b.String()
}

func answerPrompt(question string, sources []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n## Documents\n\n", question)
	for _, s := range sources {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func sourceBlock(i int, s index.Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- DOCUMENT %d: %s ---\n", i+1, s.Title)
	if s.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", s.Category)
	}
	b.WriteString(strings.TrimSpace(s.Content))
	b.WriteString("\n")
	return b.String()
}
