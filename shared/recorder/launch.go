package recorder

import (
	"bytes"
	"fmt"
	"text/template"
)

// LaunchSpec describes the stream process as an argument list. Each entry
// of Args is a text/template rendered with the destination endpoint, e.g.
// "{{.Endpoint}}".
type LaunchSpec struct {
	Command  string
	Args     []string
	Endpoint string
}

type launchData struct {
	Endpoint string
}

// Launch is a parsed LaunchSpec.
type Launch struct {
	command  string
	args     []*template.Template
	endpoint string
}

// ParseLaunch parses and test-renders every argument so a malformed
// template fails at startup rather than at window open.
func ParseLaunch(spec LaunchSpec) (*Launch, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("stream command must be configured")
	}

	l := &Launch{command: spec.Command, endpoint: spec.Endpoint}
	for i, arg := range spec.Args {
		tmpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid stream argument %d %q: %w", i, arg, err)
		}
		l.args = append(l.args, tmpl)
	}

	if _, err := l.Argv(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Launch) Command() string {
	return l.command
}

// Argv renders the full command line, program first.
func (l *Launch) Argv() ([]string, error) {
	data := launchData{Endpoint: l.endpoint}
	argv := make([]string, 0, len(l.args)+1)
	argv = append(argv, l.command)

	var buf bytes.Buffer
	for i, tmpl := range l.args {
		buf.Reset()
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render stream argument %d: %w", i, err)
		}
		argv = append(argv, buf.String())
	}
	return argv, nil
}
