package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payload is the category-specific body of a record.
type Payload interface {
	// Category returns the category this payload belongs to.
	Category() Category
	// Validate reports missing required fields.
	Validate() error
	// Sections returns the payload as ordered document sections.
	Sections() []Section

	sealed()
}

// Section is one titled block of a rendered payload. Exactly one of Text
// or Items is normally set.
type Section struct {
	Heading string
	Text    string
	Items   []string
	// Ordered renders Items as a numbered list.
	Ordered bool
}

// Empty reports whether the section has no content.
func (s Section) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && len(nonBlank(s.Items)) == 0
}

// Troubleshooting describes a problem and how it was solved.
type Troubleshooting struct {
	ProblemDescription string   `json:"problem_description" jsonschema:"description=What went wrong as observed by the team"`
	SystemInfo         string   `json:"system_info" jsonschema:"description=Affected system or service"`
	VersionInfo        string   `json:"version_info" jsonschema:"description=Relevant versions"`
	Environment        string   `json:"environment" jsonschema:"description=Environment such as production or staging"`
	Symptoms           []string `json:"symptoms" jsonschema:"description=Observed symptoms and error messages"`
	RootCause          string   `json:"root_cause" jsonschema:"description=Identified root cause"`
	SolutionSteps      []string `json:"solution_steps" jsonschema:"description=Steps that resolved the problem"`
	PreventionMeasures []string `json:"prevention_measures" jsonschema:"description=How to prevent recurrence"`
	RelatedLinks       []string `json:"related_links" jsonschema:"description=Related links"`
}

// Process describes a repeatable procedure.
type Process struct {
	ProcessOverview  string   `json:"process_overview" jsonschema:"description=What the process achieves"`
	Prerequisites    []string `json:"prerequisites" jsonschema:"description=What is needed before starting"`
	ProcessSteps     []string `json:"process_steps" jsonschema:"description=Ordered steps"`
	ValidationSteps  []string `json:"validation_steps" jsonschema:"description=How to verify success"`
	CommonIssues     []string `json:"common_issues" jsonschema:"description=Known pitfalls"`
	RelatedProcesses []string `json:"related_processes" jsonschema:"description=Related processes"`
}

// Decision records a decision and its reasoning.
type Decision struct {
	DecisionContext      string   `json:"decision_context" jsonschema:"description=Situation that required a decision"`
	DecisionMade         string   `json:"decision_made" jsonschema:"description=The decision"`
	Reasoning            string   `json:"reasoning" jsonschema:"description=Why this option was chosen"`
	Alternatives         []string `json:"alternatives" jsonschema:"description=Options considered and rejected"`
	PositiveConsequences []string `json:"positive_consequences" jsonschema:"description=Expected benefits"`
	NegativeConsequences []string `json:"negative_consequences" jsonschema:"description=Accepted drawbacks"`
	ImplementationNotes  string   `json:"implementation_notes" jsonschema:"description=Notes on carrying the decision out"`
}

// Reference points at a useful resource.
type Reference struct {
	QuestionContext     string   `json:"question_context" jsonschema:"description=Question that led to the resource"`
	ResourceType        string   `json:"resource_type" jsonschema:"description=Kind of resource such as documentation or tool or dashboard"`
	PrimaryResource     string   `json:"primary_resource" jsonschema:"description=Main resource name or location"`
	AdditionalResources []string `json:"additional_resources" jsonschema:"description=Other useful resources"`
	ResourceDescription string   `json:"resource_description" jsonschema:"description=What the resource provides"`
	UsageContext        string   `json:"usage_context" jsonschema:"description=When to use it"`
	AccessRequirements  string   `json:"access_requirements" jsonschema:"description=Permissions or access needed"`
	RelatedTopics       []string `json:"related_topics" jsonschema:"description=Related topics"`
}

// General summarizes a discussion that fits no other category.
type General struct {
	Summary             string   `json:"summary" jsonschema:"description=Summary of the discussion"`
	KeyTopics           []string `json:"key_topics" jsonschema:"description=Topics discussed"`
	KeyPoints           []string `json:"key_points" jsonschema:"description=Important points and conclusions"`
	MentionedResources  []string `json:"mentioned_resources" jsonschema:"description=Resources mentioned"`
	ParticipantsContext string   `json:"participants_context" jsonschema:"description=Roles of participants using aliases only"`
}

func (Troubleshooting) Category() Category { return CategoryTroubleshooting }
func (Process) Category() Category         { return CategoryProcess }
func (Decision) Category() Category        { return CategoryDecision }
func (Reference) Category() Category       { return CategoryReference }
func (General) Category() Category         { return CategoryGeneral }

func (Troubleshooting) sealed() {}
func (Process) sealed()         {}
func (Decision) sealed()        {}
func (Reference) sealed()       {}
func (General) sealed()         {}

// Validate requires a problem description and at least one solution step.
func (p Troubleshooting) Validate() error {
	return required(
		field("problem_description", p.ProblemDescription),
		list("solution_steps", p.SolutionSteps),
	)
}

// Validate requires an overview and at least one step.
func (p Process) Validate() error {
	return required(
		field("process_overview", p.ProcessOverview),
		list("process_steps", p.ProcessSteps),
	)
}

// Validate requires the context and the decision.
func (p Decision) Validate() error {
	return required(
		field("decision_context", p.DecisionContext),
		field("decision_made", p.DecisionMade),
	)
}

// Validate requires the primary resource and its description.
func (p Reference) Validate() error {
	return required(
		field("primary_resource", p.PrimaryResource),
		field("resource_description", p.ResourceDescription),
	)
}

// Validate requires a summary.
func (p General) Validate() error {
	return required(field("summary", p.Summary))
}

func (p Troubleshooting) Sections() []Section {
	env := joinNonBlank(" / ", p.SystemInfo, p.VersionInfo, p.Environment)
	return []Section{
		{Heading: "Problem Description", Text: p.ProblemDescription},
		{Heading: "Environment", Text: env},
		{Heading: "Symptoms", Items: p.Symptoms},
		{Heading: "Root Cause", Text: p.RootCause},
		{Heading: "Solution", Items: p.SolutionSteps, Ordered: true},
		{Heading: "Prevention", Items: p.PreventionMeasures},
		{Heading: "Related Links", Items: p.RelatedLinks},
	}
}

func (p Process) Sections() []Section {
	return []Section{
		{Heading: "Overview", Text: p.ProcessOverview},
		{Heading: "Prerequisites", Items: p.Prerequisites},
		{Heading: "Steps", Items: p.ProcessSteps, Ordered: true},
		{Heading: "Validation", Items: p.ValidationSteps},
		{Heading: "Common Issues", Items: p.CommonIssues},
		{Heading: "Related Processes", Items: p.RelatedProcesses},
	}
}

func (p Decision) Sections() []Section {
	return []Section{
		{Heading: "Context", Text: p.DecisionContext},
		{Heading: "Decision", Text: p.DecisionMade},
		{Heading: "Reasoning", Text: p.Reasoning},
		{Heading: "Alternatives Considered", Items: p.Alternatives},
		{Heading: "Positive Consequences", Items: p.PositiveConsequences},
		{Heading: "Negative Consequences", Items: p.NegativeConsequences},
		{Heading: "Implementation Notes", Text: p.ImplementationNotes},
	}
}

func (p Reference) Sections() []Section {
	return []Section{
		{Heading: "Question", Text: p.QuestionContext},
		{Heading: "Resource", Text: joinNonBlank(": ", p.ResourceType, p.PrimaryResource)},
		{Heading: "Description", Text: p.ResourceDescription},
		{Heading: "When to Use", Text: p.UsageContext},
		{Heading: "Access", Text: p.AccessRequirements},
		{Heading: "Additional Resources", Items: p.AdditionalResources},
		{Heading: "Related Topics", Items: p.RelatedTopics},
	}
}

func (p General) Sections() []Section {
	return []Section{
		{Heading: "Summary", Text: p.Summary},
		{Heading: "Key Topics", Items: p.KeyTopics},
		{Heading: "Key Points", Items: p.KeyPoints},
		{Heading: "Mentioned Resources", Items: p.MentionedResources},
		{Heading: "Participants", Text: p.ParticipantsContext},
	}
}

// Markdown renders non-empty sections as level-two markdown sections.
func Markdown(p Payload) string {
	var b strings.Builder
	for _, s := range p.Sections() {
		if s.Empty() {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", s.Heading)
		if strings.TrimSpace(s.Text) != "" {
			b.WriteString(strings.TrimSpace(s.Text))
			b.WriteString("\n")
		}
		for i, item := range nonBlank(s.Items) {
			if s.Ordered {
				fmt.Fprintf(&b, "%d. %s\n", i+1, item)
			} else {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
	}
	return b.String()
}

// NewPayload returns a zero payload for c.
func NewPayload(c Category) (Payload, error) {
	switch c {
	case CategoryTroubleshooting:
		return Troubleshooting{}, nil
	case CategoryProcess:
		return Process{}, nil
	case CategoryDecision:
		return Decision{}, nil
	case CategoryReference:
		return Reference{}, nil
	case CategoryGeneral:
		return General{}, nil
	}
	return nil, fmt.Errorf("unrecognized category %q", c)
}

// DecodePayload decodes JSON fields into the payload type for c.
func DecodePayload(c Category, data []byte) (Payload, error) {
	switch c {
	case CategoryTroubleshooting:
		return decodeAs[Troubleshooting](data)
	case CategoryProcess:
		return decodeAs[Process](data)
	case CategoryDecision:
		return decodeAs[Decision](data)
	case CategoryReference:
		return decodeAs[Reference](data)
	case CategoryGeneral:
		return decodeAs[General](data)
	}
	return nil, fmt.Errorf("unrecognized category %q", c)
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", p, err)
	}
	return p, nil
}

type requirement struct {
	name string
	ok   bool
}

func field(name, v string) requirement {
	return requirement{name: name, ok: strings.TrimSpace(v) != ""}
}

func list(name string, v []string) requirement {
	return requirement{name: name, ok: len(nonBlank(v)) > 0}
}

func required(reqs ...requirement) error {
	var missing []string
	for _, r := range reqs {
		if !r.ok {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return errors.New("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinNonBlank(sep string, parts ...string) string {
	return strings.Join(nonBlank(parts), sep)
}
