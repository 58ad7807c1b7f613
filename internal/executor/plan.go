package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/models"
)

// Request is one resolved invocation: what to do, to which inputs, and where.
type Request struct {
	Direction models.Direction
	Inputs    []string
	// Output is the destination. For decoding it is a directory and may be
	// empty (the working directory); for encoding it names the file to create.
	Output string
}

// Plan infers the destination of every input and returns the jobs to run, in
// input order. It fails before any job starts when the intent is ambiguous.
func Plan(req Request) ([]models.Job, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("no input paths given")
	}
	if req.Direction == models.Encode {
		return planEncode(req)
	}
	return planDecode(req)
}

// planDecode turns every input into its own job extracting into one directory.
// Inputs that turn out not to be decompressible fail in their own job so the
// rest of the batch still runs.
func planDecode(req Request) ([]models.Job, error) {
	dest := req.Output
	if dest == "" {
		dest = "."
	}
	if chain, _, err := format.Parse(dest); err == nil && len(chain) > 0 {
		if info, statErr := os.Stat(dest); statErr != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: decompress output %s names a %s file, not a directory", ErrAmbiguousOutput, dest, chain)
		}
	}

	jobs := make([]models.Job, 0, len(req.Inputs))
	for i, input := range req.Inputs {
		jobs = append(jobs, models.Job{
			ID:          i + 1,
			Direction:   models.Decode,
			Inputs:      []string{input},
			Output:      dest,
			OutputIsDir: true,
		})
	}
	return jobs, nil
}

// planEncode builds the single job that writes every input into the output.
// More than one input, or a directory input, needs a container layer.
func planEncode(req Request) ([]models.Job, error) {
	if req.Output == "" {
		return nil, fmt.Errorf("%w: compress needs an output file name", ErrAmbiguousOutput)
	}
	chain, _, err := format.ParseOutput(req.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnrecognizedFormat, err)
	}
	_, hasContainer := chain.Container()

	outAbs, err := filepath.Abs(req.Output)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(req.Inputs))
	for _, input := range req.Inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, err
		}
		if abs == outAbs {
			return nil, fmt.Errorf("%w: %s is both input and output", ErrAmbiguousOutput, input)
		}
		base := filepath.Base(abs)
		if prev, ok := names[base]; ok {
			return nil, fmt.Errorf("%w: %s and %s would share the entry name %q", ErrAmbiguousOutput, prev, input, base)
		}
		names[base] = input

		if hasContainer {
			continue
		}
		if len(req.Inputs) > 1 {
			return nil, fmt.Errorf("%w: %d inputs cannot share the stream-only output %s; add a container such as .tar", ErrAmbiguousOutput, len(req.Inputs), req.Output)
		}
		if info, err := os.Stat(input); err == nil && info.IsDir() {
			return nil, fmt.Errorf("%w: directory %s needs a container in output %s, e.g. %s.tar%s", ErrAmbiguousOutput, input, req.Output, base, chain.Suffix())
		}
	}

	return []models.Job{{
		ID:        1,
		Direction: models.Encode,
		Inputs:    append([]string(nil), req.Inputs...),
		Output:    req.Output,
		Chain:     chain,
	}}, nil
}
