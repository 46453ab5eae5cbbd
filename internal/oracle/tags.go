package oracle

import (
	"sort"
	"strings"
)

// DefaultTagRules maps tags to keywords that indicate them. Keywords are
// matched case-insensitively as substrings, so short ones carry padding.
var DefaultTagRules = map[string][]string{
	// Languages
	"golang":     {".go ", "go mod", "go build", "go test", "golang"},
	"python":     {".py ", "pip install", "pytest", "python", "django", "flask"},
	"javascript": {".js ", "npm ", "yarn ", "node.js", "nodejs", "javascript", "typescript"},
	"java":       {".java ", "maven", "gradle", " jvm"},

	// Infrastructure
	"kubernetes": {"kubectl", "k8s", "helm", "kubernetes", " pod ", " pods "},
	"terraform":  {"terraform", "tfstate", "tfvars"},
	"docker":     {"dockerfile", "docker-compose", "docker"},
	"aws":        {" aws", " s3 ", " ec2", "lambda", "cloudformation", " iam "},
	"gcp":        {"gcloud", " gcp", "pubsub", "bigquery", " gke"},
	"ci-cd":      {"pipeline run", "github actions", "jenkins", " ci ", "ci/cd", "build failed", "deploy job"},
	"networking": {"timeout", "timed out", "times out", " dns", "proxy", " tls", "ssl", "firewall", "connection refused"},

	// Concerns
	"database":    {"database", " db ", " sql", "postgres", "mysql", "mongodb", "redis"},
	"security":    {"credential", "permission", "encrypt", "security", "vulnerab", " auth", "oauth", " sso"},
	"performance": {"optimiz", " slow", "latency", "throughput", "memory leak", "cpu usage"},
	"monitoring":  {"alert", "dashboard", "grafana", "prometheus", "metrics", "on-call"},
	"testing":     {"unit test", "integration test", "flaky", "coverage", " mock"},
	"deployment":  {"deploy", "rollout", "rollback", "release"},
	"git":         {" git ", "merge conflict", "rebase", "pull request", "branch"},
	"api":         {" api", "endpoint", "rest ", "grpc", "graphql", "webhook"},
}

// DefaultMaxTags caps the tags a local extraction returns.
const DefaultMaxTags = 5

// TagExtractor derives tags from text by keyword matching.
type TagExtractor struct {
	rules map[string][]string
	max   int
}

// NewTagExtractor creates a TagExtractor. Empty rules use DefaultTagRules.
func NewTagExtractor(rules map[string][]string, max int) *TagExtractor {
	if len(rules) == 0 {
		rules = DefaultTagRules
	}
	if max <= 0 {
		max = DefaultMaxTags
	}
	return &TagExtractor{rules: rules, max: max}
}

// ExtractTags returns matching tags ordered by hit count, then name.
func (t *TagExtractor) ExtractTags(content string) []string {
	content = " " + strings.ToLower(content) + " "
	hits := make(map[string]int)
	for tag, keywords := range t.rules {
		for _, keyword := range keywords {
			hits[tag] += strings.Count(content, strings.ToLower(keyword))
		}
		if hits[tag] == 0 {
			delete(hits, tag)
		}
	}

	tags := make([]string, 0, len(hits))
	for tag := range hits {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if hits[tags[i]] != hits[tags[j]] {
			return hits[tags[i]] > hits[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > t.max {
		tags = tags[:t.max]
	}
	return tags
}
