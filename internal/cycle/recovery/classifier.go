package recovery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/autocycle/internal/core/domain"
)

// defaultPatterns is walked in order; the first kind with a matching
// pattern wins.
var defaultPatterns = []struct {
	kind     domain.ErrorKind
	patterns []string
}{
	{domain.ErrorKindBuildFailure, []string{
		`build failed`, `compilation error`, `gradle.*failed`, `npm.*error`, `react-native.*error`,
	}},
	{domain.ErrorKindDependency, []string{
		`module not found`, `cannot resolve dependency`, `package.*not found`,
		`importerror`, `modulenotfounderror`, `npm.*missing`,
	}},
	{domain.ErrorKindPermission, []string{
		`permission denied`, `access denied`, `eperm`, `eacces`, `insufficient privileges`,
	}},
	{domain.ErrorKindNetwork, []string{
		`network.*error`, `connection.*failed`, `timeout.*connecting`, `dns.*error`,
		`etimedout`, `econnrefused`,
	}},
	{domain.ErrorKindTimeout, []string{
		`timeout`, `timeoutexpired`, `operation.*timed out`, `request timeout`,
	}},
	{domain.ErrorKindExternalTool, []string{
		`claude.*error`, `authentication.*failed`, `api.*error`, `invalid.*token`, `claude.*not found`,
	}},
	{domain.ErrorKindEnvironment, []string{
		`environment.*error`, `path.*not found`, `command.*not found`,
		`python.*not found`, `java.*not found`,
	}},
}

type kindPatterns struct {
	kind     domain.ErrorKind
	patterns []*regexp.Regexp
}

// Classifier maps failure text and exit codes to an ErrorKind.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	table []kindPatterns
}

// NewClassifier compiles the default table. extra patterns are appended to
// their kind without changing the order kinds are tried in.
func NewClassifier(extra map[domain.ErrorKind][]string) (*Classifier, error) {
	for kind := range extra {
		if !kind.Valid() || kind == domain.ErrorKindUnknown {
			return nil, fmt.Errorf("cannot add patterns for error kind %q", kind)
		}
	}

	c := &Classifier{table: make([]kindPatterns, 0, len(defaultPatterns))}
	for _, entry := range defaultPatterns {
		sources := append(append([]string{}, entry.patterns...), extra[entry.kind]...)
		kp := kindPatterns{kind: entry.kind}
		for _, src := range sources {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for %s: %w", src, entry.kind, err)
			}
			kp.patterns = append(kp.patterns, re)
		}
		c.table = append(c.table, kp)
	}
	return c, nil
}

// MustClassifier is NewClassifier without extras; the default table always compiles.
func MustClassifier() *Classifier {
	c, err := NewClassifier(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the first kind whose pattern matches message or aux,
// falling back to the exit code.
func (c *Classifier) Classify(message, aux string, exitCode *int) domain.ErrorKind {
	text := strings.ToLower(message + " " + aux)
	for _, kp := range c.table {
		for _, re := range kp.patterns {
			if re.MatchString(text) {
				return kp.kind
			}
		}
	}
	return ClassifyExitCode(exitCode)
}

// ClassifyExitCode maps well-known exit codes to a kind.
func ClassifyExitCode(exitCode *int) domain.ErrorKind {
	if exitCode == nil {
		return domain.ErrorKindUnknown
	}
	switch *exitCode {
	case 1:
		return domain.ErrorKindBuildFailure
	case 126, 127:
		return domain.ErrorKindEnvironment
	case 130:
		return domain.ErrorKindTimeout
	default:
		return domain.ErrorKindUnknown
	}
}
