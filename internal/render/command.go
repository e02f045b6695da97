package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// Output declares one file produced by the external command.
type Output struct {
	Name     string // human label shown in the descriptor
	Filename string // template over Job, e.g. "{{.BaseName}}.stl"
	Preview  bool
}

// DefaultOutputs are the four artifacts of the QR tag toolchain.
var DefaultOutputs = []Output{
	{Name: "STL model", Filename: "{{.BaseName}}.stl"},
	{Name: "QR-Code", Filename: "{{.BaseName}}.qrcode.png"},
	{Name: "OpenSCAD file", Filename: "{{.BaseName}}.scad"},
	{Name: "Preview", Filename: "{{.BaseName}}.png", Preview: true},
}

// CommandRenderer runs an external program once per job. Arguments and
// output filenames are text/templates over Job. If every declared output
// already exists in the job directory, the command is not run.
type CommandRenderer struct {
	command string
	args    []*template.Template
	outputs []outputTemplate
	env     []string
}

type outputTemplate struct {
	Output
	tmpl *template.Template
}

// NewCommandRenderer parses the argument and output templates.
func NewCommandRenderer(command string, args []string, outputs []Output, env ...string) (*CommandRenderer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ferrors.ConfigError("renderer command is required").Build()
	}
	r := &CommandRenderer{command: command, env: env}
	for i, a := range args {
		t, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, ferrors.ConfigError("invalid renderer argument template").
				WithCause(err).
				WithContext("arg", a).
				Build()
		}
		r.args = append(r.args, t)
	}
	for _, o := range outputs {
		t, err := template.New(o.Name).Option("missingkey=error").Parse(o.Filename)
		if err != nil {
			return nil, ferrors.ConfigError("invalid renderer output template").
				WithCause(err).
				WithContext("output", o.Filename).
				Build()
		}
		r.outputs = append(r.outputs, outputTemplate{Output: o, tmpl: t})
	}
	return r, nil
}

// Assets implements Renderer. Filenames are bare file names inside the leaf
// directory.
func (r *CommandRenderer) Assets(baseName string) []Asset {
	job := Job{BaseName: baseName}
	out := make([]Asset, 0, len(r.outputs))
	for _, o := range r.outputs {
		name, err := execute(o.tmpl, job)
		if err != nil {
			continue
		}
		out = append(out, Asset{Name: o.Name, Filename: name, Preview: o.Preview})
	}
	return out
}

// Render implements Renderer.
func (r *CommandRenderer) Render(ctx context.Context, job Job) error {
	if err := os.MkdirAll(job.Dir, 0o755); err != nil {
		return ferrors.FileSystemError("failed to create leaf directory").
			WithCause(err).
			WithContext("path", job.Dir).
			Build()
	}

	if done, err := r.outputsExist(job); err != nil {
		return err
	} else if done {
		return nil
	}

	args := make([]string, 0, len(r.args))
	for _, t := range r.args {
		a, err := execute(t, job)
		if err != nil {
			return ferrors.RenderError("failed to expand renderer argument").WithCause(err).Build()
		}
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = job.Dir
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(os.Environ(),
		"FILAMENT_ID="+job.ID,
		"FILAMENT_URL="+job.URL,
		"FILAMENT_DIR="+job.Dir,
		"FILAMENT_BASENAME="+job.BaseName,
	)
	cmd.Env = append(cmd.Env, r.env...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return ferrors.RenderError("renderer command failed").
			WithCause(err).
			WithContext("command", r.command).
			WithContext("id", job.ID).
			WithContext("output", tail(output.String(), 2048)).
			Build()
	}
	return nil
}

func (r *CommandRenderer) outputsExist(job Job) (bool, error) {
	if len(r.outputs) == 0 {
		return false, nil
	}
	for _, o := range r.outputs {
		name, err := execute(o.tmpl, job)
		if err != nil {
			return false, ferrors.RenderError("failed to expand renderer output").WithCause(err).Build()
		}
		if _, err := os.Stat(filepath.Join(job.Dir, name)); err != nil {
			return false, nil
		}
	}
	return true, nil
}

func execute(t *template.Template, job Job) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, job); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
