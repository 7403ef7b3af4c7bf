package control

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"mercator-hq/sluice/pkg/transaction"
)

// DefaultSecretPatterns is the built-in detector set, keyed by secret type.
var DefaultSecretPatterns = map[string]string{
	"aws_access_key": `\bAKIA[0-9A-Z]{16}\b`,
	"gcp_api_key":    `\bAIza[0-9A-Za-z\-_]{35}\b`,
	"github_token":   `\b(?:gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,})`,
	"openai_key":     `\bsk-(?:(?:proj|svcacct|admin)-[A-Za-z0-9_\-]{20,}|[A-Za-z0-9]{20,})`,
	"anthropic_key":  `\bsk-ant-[A-Za-z0-9\-_]{20,}`,
	"slack_token":    `\bxox[baprs]-[A-Za-z0-9\-]{10,}`,
	"stripe_key":     `\b(?:sk|rk)_live_[0-9a-zA-Z]{24,}`,
	"private_key":    `-----BEGIN\s+(?:RSA\s+|EC\s+|DSA\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`,
	"jwt":            `\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`,
}

var defaultSecretDetectors = mustCompileDetectors(DefaultSecretPatterns)

type secretDetector struct {
	name    string
	pattern *regexp.Regexp
}

// ScanForLeakedSecrets rejects requests whose message content contains
// secret-shaped strings. Matched secret types are recorded under
// secret_types; the matched text is never logged or returned.
type ScanForLeakedSecrets struct {
	// custom is nil when the built-in set is used.
	custom    map[string]string
	detectors []secretDetector
}

// NewScanForLeakedSecrets creates the policy. A nil or empty patterns map
// selects DefaultSecretPatterns.
func NewScanForLeakedSecrets(patterns map[string]string) (*ScanForLeakedSecrets, error) {
	if len(patterns) == 0 {
		return &ScanForLeakedSecrets{detectors: defaultSecretDetectors}, nil
	}
	detectors, err := compileDetectors(patterns)
	if err != nil {
		return nil, err
	}
	custom := make(map[string]string, len(patterns))
	for k, v := range patterns {
		custom[k] = v
	}
	return &ScanForLeakedSecrets{custom: custom, detectors: detectors}, nil
}

// Name implements Policy.
func (s *ScanForLeakedSecrets) Name() string { return KindScanForLeakedSecrets.String() }

// Kind implements Policy.
func (s *ScanForLeakedSecrets) Kind() Kind { return KindScanForLeakedSecrets }

// Document implements Policy.
func (s *ScanForLeakedSecrets) Document() Document {
	if s.custom == nil {
		return document(KindScanForLeakedSecrets, nil)
	}
	return document(KindScanForLeakedSecrets, Document{"patterns": stringMapDocument(s.custom)})
}

// Apply implements Policy.
func (s *ScanForLeakedSecrets) Apply(ctx context.Context, t *transaction.Transaction, env *Env) (*transaction.Transaction, error) {
	if t.Request == nil {
		return t, nil
	}

	texts := messageTexts(t.Request.Payload)
	var found []string
	for _, d := range s.detectors {
		for _, text := range texts {
			if d.pattern.MatchString(text) {
				found = append(found, d.name)
				break
			}
		}
	}
	if len(found) == 0 {
		return t, nil
	}

	sideData(t).Set(transaction.KeySecretTypes, transaction.Strings(found...))
	err := &ContentPolicyViolation{Policy: s.Name(), Reason: "request contains leaked secrets", Findings: found}
	env.logFailure(ctx, s, t, err)
	return t, err
}

// messageTexts collects the scannable text of a chat or completion payload:
// every message content (plain string or text parts) and a top-level prompt.
func messageTexts(payload map[string]any) []string {
	var texts []string
	if prompt, ok := payload["prompt"].(string); ok {
		texts = append(texts, prompt)
	}
	messages, _ := payload["messages"].([]any)
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			texts = append(texts, content)
		case []any:
			for _, part := range content {
				if p, ok := part.(map[string]any); ok {
					if text, ok := p["text"].(string); ok {
						texts = append(texts, text)
					}
				}
			}
		}
	}
	return texts
}

// compileDetectors compiles patterns in name order so findings are stable.
func compileDetectors(patterns map[string]string) ([]secretDetector, error) {
	detectors := make([]secretDetector, 0, len(patterns))
	for _, name := range sortedKeys(patterns) {
		re, err := regexp.Compile(patterns[name])
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", name, err)
		}
		detectors = append(detectors, secretDetector{name: name, pattern: re})
	}
	return detectors, nil
}

func mustCompileDetectors(patterns map[string]string) []secretDetector {
	detectors, err := compileDetectors(patterns)
	if err != nil {
		panic(err)
	}
	return detectors
}

func loadScanForLeakedSecrets(_ *Loader, config Document) (Policy, error) {
	patterns, err := stringMap(config, "patterns")
	if err != nil {
		return nil, err
	}
	p, err := NewScanForLeakedSecrets(patterns)
	if err != nil {
		return nil, &LoadError{Path: "patterns", Message: "invalid pattern", Cause: err}
	}
	return p, nil
}

// SecretTypes returns the detector names in scan order.
func (s *ScanForLeakedSecrets) SecretTypes() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.name
	}
	sort.Strings(names)
	return names
}
