package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/index"
	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
	"github.com/fyrsmithlabs/archie/internal/pii"
)

// Local decision thresholds on title similarity.
const (
	localDuplicateSimilarity = 0.9
	localUpdateSimilarity    = 0.5
	localMinClassifyScore    = 1.0
	localMaxTitleLength      = 80
)

// CategoryPattern scores a category by regex matches.
type CategoryPattern struct {
	Category knowledge.Category
	Regex    string
	Weight   float64
}

// DefaultCategoryPatterns are the classification rules of the local oracle.
// Categories without a pattern, and conversations scoring below one full
// match, fall back to general.
func DefaultCategoryPatterns() []CategoryPattern {
	return []CategoryPattern{
		{knowledge.CategoryTroubleshooting, `(?i)\b(errors?|exceptions?|fail(ed|ing|ure|s)?|broken|crash(ed|es)?|times? ?out|timed out|bug|not working|fix(ed|es)?|workaround|root cause|resolved)\b`, 1.0},
		{knowledge.CategoryProcess, `(?i)\b(how (do|to|can) (i|we|you)|steps?|procedure|process|checklist|runbook|set ?up|install|onboard(ing)?)\b`, 0.8},
		{knowledge.CategoryDecision, `(?i)\b(decid(e|ed|ing)|decision|go with|agreed|trade-?offs?|pros and cons|instead of|chose|choose)\b`, 1.0},
		{knowledge.CategoryReference, `(?i)(https?://\S+|\b(docs?|documentation|wiki|dashboard|see also|refer to|reference|bookmark)\b)`, 0.7},
	}
}

type compiledCategoryPattern struct {
	CategoryPattern
	regex *regexp.Regexp
}

var (
	transcriptLine = regexp.MustCompile(`^\s*(?:↳ )?\[(\d+)\] ([^:]+): ?(.*)$`)
	urlPattern     = regexp.MustCompile(`https?://[^\s)>\]]+`)
	solutionHint   = regexp.MustCompile(`(?i)\b(fix(ed)?|resolved?|solution|workaround|solved|increas(e|ed|ing)|restart(ed)?|upgrad(e|ed)|chang(e|ed)|set|added|removed|try|run)\b`)
	causeHint      = regexp.MustCompile(`(?i)\b(because|caused by|root cause|due to|turned out)\b`)
	decisionHint   = regexp.MustCompile(`(?i)\b(decided|decision|go with|agreed|we will|we'll|let's)\b`)
	reasonHint     = regexp.MustCompile(`(?i)\b(because|since|so that|reason)\b`)
	alternateHint  = regexp.MustCompile(`(?i)\b(instead|alternative|option|considered|versus|vs\.?)\b`)
	listItem       = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
	symptomHint    = regexp.MustCompile(`(?i)\b(error|exception|timeout|times out|fail|slow|5\d\d|4\d\d)\b`)
)

// Local is an Oracle that needs no model: personal data is masked by the
// pii engine and everything else is heuristic. Its output is deterministic.
type Local struct {
	masker   pii.Masker
	tags     *TagExtractor
	patterns []*compiledCategoryPattern
	now      func() time.Time
	logger   *zap.Logger
}

// NewLocal creates a Local oracle. A nil masker uses the default pii rules.
func NewLocal(masker pii.Masker, logger *zap.Logger) (*Local, error) {
	if masker == nil {
		m, err := pii.New(nil)
		if err != nil {
			return nil, err
		}
		masker = m
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	patterns := DefaultCategoryPatterns()
	compiled := make([]*compiledCategoryPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling %s pattern: %w", p.Category, err)
		}
		compiled = append(compiled, &compiledCategoryPattern{CategoryPattern: p, regex: re})
	}
	return &Local{
		masker:   masker,
		tags:     NewTagExtractor(nil, 0),
		patterns: compiled,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Anonymize masks personal data with the pii engine.
func (l *Local) Anonymize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res := l.masker.Mask(text)
	if res.HasFindings() {
		l.logger.Debug("Masked personal data", zap.Int("findings", res.TotalFindings))
	}
	return res.Masked, nil
}

// Classify scores every category pattern and returns the best one.
func (l *Local) Classify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	best, bestScore := knowledge.CategoryGeneral, 0.0
	for _, p := range l.patterns {
		score := float64(len(p.regex.FindAllStringIndex(text, -1))) * p.Weight
		if score > bestScore {
			best, bestScore = p.Category, score
		}
	}
	if bestScore < localMinClassifyScore {
		best = knowledge.CategoryGeneral
	}
	return string(best), nil
}

// Extract builds a record for category from the transcript structure.
func (l *Local) Extract(ctx context.Context, category knowledge.Category, text string, ec knowledge.ExtractContext) (*knowledge.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units := transcriptUnits(text)
	if len(units) == 0 {
		return nil, ErrEmptyResponse
	}

	payload, err := l.payload(category, units)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(ec.Title)
	if title == "" {
		title = firstSentence(units[0], localMaxTitleLength)
	}
	confidence := 0.4 + 0.1*float64(len(units))
	if confidence > 0.8 {
		confidence = 0.8
	}
	return &knowledge.Extraction{
		Title:      title,
		Tags:       l.tags.ExtractTags(text),
		Confidence: confidence,
		Rationale:  fmt.Sprintf("Heuristic %s extraction from %d messages", category, len(units)),
		Payload:    payload,
	}, nil
}

func (l *Local) payload(category knowledge.Category, units []string) (knowledge.Payload, error) {
	first, rest := units[0], units[1:]
	urls := urlPattern.FindAllString(strings.Join(units, "\n"), -1)

	switch category {
	case knowledge.CategoryTroubleshooting:
		steps := matchingUnits(rest, solutionHint)
		if len(steps) == 0 {
			steps = lastUnit(units)
		}
		return knowledge.Troubleshooting{
			ProblemDescription: first,
			Symptoms:           matchingUnits(sentences(first), symptomHint),
			RootCause:          firstMatch(rest, causeHint),
			SolutionSteps:      steps,
			RelatedLinks:       urls,
		}, nil

	case knowledge.CategoryProcess:
		var steps []string
		for _, u := range units {
			for _, line := range strings.Split(u, "\n") {
				if m := listItem.FindStringSubmatch(line); m != nil {
					steps = append(steps, strings.TrimSpace(m[1]))
				}
			}
		}
		if len(steps) == 0 {
			steps = append(steps, rest...)
		}
		if len(steps) == 0 {
			steps = lastUnit(units)
		}
		return knowledge.Process{ProcessOverview: first, ProcessSteps: steps}, nil

	case knowledge.CategoryDecision:
		made := firstMatch(rest, decisionHint)
		if made == "" {
			made = units[len(units)-1]
		}
		return knowledge.Decision{
			DecisionContext: first,
			DecisionMade:    made,
			Reasoning:       firstMatch(units, reasonHint),
			Alternatives:    matchingUnits(units, alternateHint),
		}, nil

	case knowledge.CategoryReference:
		primary, description := "", units[len(units)-1]
		if len(urls) > 0 {
			primary = urls[0]
			for _, u := range units {
				if strings.Contains(u, primary) {
					description = u
					break
				}
			}
		} else {
			primary = firstSentence(description, localMaxTitleLength)
		}
		var additional []string
		if len(urls) > 1 {
			additional = urls[1:]
		}
		return knowledge.Reference{
			QuestionContext:     first,
			ResourceType:        resourceType(primary),
			PrimaryResource:     primary,
			AdditionalResources: additional,
			ResourceDescription: description,
		}, nil

	case knowledge.CategoryGeneral:
		return knowledge.General{
			Summary:            first,
			KeyTopics:          l.tags.ExtractTags(strings.Join(units, "\n")),
			KeyPoints:          rest,
			MentionedResources: urls,
		}, nil
	}
	return nil, fmt.Errorf("unrecognized category %q", category)
}

// DecideMatch compares titles and tags. Near-identical titles are
// duplicates, similar titles are updates and anything else is new.
func (l *Local) DecideMatch(ctx context.Context, rec *knowledge.Record, candidates []matching.Candidate) (*matching.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	verdict := &matching.Verdict{
		Action:          string(matching.ActionCreate),
		Confidence:      0.6,
		Rationale:       "No existing document covers this topic",
		ValueAssessment: "New knowledge",
		Category:        string(rec.Category),
	}

	bestSim, best := 0.0, -1
	for i, c := range candidates {
		sim := titleSimilarity(rec.Title, c.Title)
		if c.Category == string(rec.Category) && tagOverlap(rec.Tags, c.Tags) > 0 {
			sim += 0.1
		}
		if sim > bestSim {
			bestSim, best = sim, i
		}
	}
	if best < 0 {
		return verdict, nil
	}

	c := candidates[best]
	switch {
	case bestSim >= localDuplicateSimilarity:
		verdict.Action = string(matching.ActionIgnore)
		verdict.Rationale = fmt.Sprintf("Existing document %q already covers this topic", c.Title)
		verdict.ValueAssessment = "Duplicate of an existing document"
	case bestSim >= localUpdateSimilarity:
		verdict.Action = string(matching.ActionUpdate)
		verdict.Rationale = fmt.Sprintf("Existing document %q covers a related topic", c.Title)
		verdict.ValueAssessment = "Adds detail to an existing document"
	default:
		return verdict, nil
	}
	verdict.TargetPath = c.Path
	verdict.TargetTitle = c.Title
	verdict.Category = c.Category
	verdict.Confidence = clampUnit(bestSim)
	return verdict, nil
}

// Merge appends the record's sections under a dated heading.
func (l *Local) Merge(ctx context.Context, existingBody string, rec *knowledge.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(existingBody, "\n"))
	fmt.Fprintf(&b, "\n\n## Update %s\n\n", l.now().UTC().Format("2006-01-02"))
	body := strings.ReplaceAll("\n"+strings.TrimSpace(rec.Body()), "\n## ", "\n### ")
	b.WriteString(strings.TrimPrefix(body, "\n"))
	b.WriteString("\n")
	return b.String(), nil
}

// Answer quotes the sentence of sources sharing the most words with
// question. Headings are not quoted. It replies index.NoAnswer when no
// sentence shares any word.
func (l *Local) Answer(ctx context.Context, question string, sources []index.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	words := questionWords(question)
	best, bestScore, bestSource := "", 0, index.Source{}
	for _, src := range sources {
		for _, line := range strings.Split(src.Content, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			line = strings.TrimSpace(strings.TrimLeft(line, "-*>0123456789. "))
			for _, sentence := range sentences(line) {
				if score := overlap(words, titleWords(sentence)); score > bestScore {
					best, bestScore, bestSource = sentence, score, src
				}
			}
		}
	}
	if bestScore == 0 {
		return index.NoAnswer, nil
	}
	l.logger.Debug("Answered from knowledge base", zap.String("path", bestSource.Path), zap.Int("score", bestScore))
	return fmt.Sprintf("According to %s, %s\n\nSources: %s", bestSource.Title, best, bestSource.Title), nil
}

// questionWords are the words of a question minus the ones every question
// shares.
func questionWords(q string) map[string]bool {
	words := titleWords(q)
	for _, w := range []string{"a", "an", "the", "is", "are", "do", "does", "how", "what", "when", "where", "why", "who", "which", "to", "of", "in", "on", "for", "i", "we", "my", "our", "can", "should", "it"} {
		delete(words, w)
	}
	return words
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// transcriptUnits recovers message contents from a transcript. Text that
// is not in transcript form is split into paragraphs, or sentences when it
// is a single paragraph.
func transcriptUnits(text string) []string {
	var units []string
	var cur *strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if m := transcriptLine.FindStringSubmatch(line); m != nil {
			if cur != nil {
				units = appendUnit(units, cur.String())
			}
			cur = &strings.Builder{}
			cur.WriteString(m[3])
			continue
		}
		if cur != nil {
			cur.WriteString("\n")
			cur.WriteString(line)
		}
	}
	if cur != nil {
		units = appendUnit(units, cur.String())
	}
	if len(units) == 0 {
		units = paragraphs(text)
	}
	if len(units) == 1 {
		if parts := paragraphs(units[0]); len(parts) > 1 {
			return parts
		}
		if parts := sentences(units[0]); len(parts) > 1 {
			return parts
		}
	}
	return units
}

func appendUnit(units []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		units = append(units, s)
	}
	return units
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		out = appendUnit(out, p)
	}
	return out
}

func sentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = appendUnit(out, text[prev:loc[0]+1])
		prev = loc[1]
	}
	return appendUnit(out, text[prev:])
}

func firstSentence(s string, max int) string {
	line := strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if parts := sentences(line); len(parts) > 0 {
		line = strings.TrimRight(parts[0], ".!?")
	}
	if r := []rune(line); len(r) > max {
		line = strings.TrimSpace(string(r[:max]))
	}
	return line
}

func matchingUnits(units []string, re *regexp.Regexp) []string {
	var out []string
	for _, u := range units {
		if re.MatchString(u) {
			out = append(out, u)
		}
	}
	return out
}

func firstMatch(units []string, re *regexp.Regexp) string {
	for _, u := range units {
		if re.MatchString(u) {
			return u
		}
	}
	return ""
}

func lastUnit(units []string) []string {
	return []string{units[len(units)-1]}
}

func resourceType(resource string) string {
	lower := strings.ToLower(resource)
	switch {
	case strings.Contains(lower, "wiki"), strings.Contains(lower, "docs"), strings.Contains(lower, "confluence"):
		return "documentation"
	case strings.Contains(lower, "dashboard"), strings.Contains(lower, "grafana"):
		return "dashboard"
	case strings.Contains(lower, "github.com"), strings.Contains(lower, "gitlab"):
		return "repository"
	case strings.HasPrefix(lower, "http"):
		return "link"
	}
	return "resource"
}

func titleWords(title string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Split(knowledge.Slug(title), "-") {
		if w != "" {
			words[w] = true
		}
	}
	return words
}

// titleSimilarity is the Jaccard index of the title word sets.
func titleSimilarity(a, b string) float64 {
	wa, wb := titleWords(a), titleWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(wa)+len(wb)-shared)
}

func tagOverlap(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

var _ Oracle = (*Local)(nil)
