package kraken

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Input lists the read files of one run. Paired runs carry exactly two
// files, first mate first.
type Input struct {
	Files  []string
	Paired bool
}

// Classifier produces a report file and a per-read output file for the
// given inputs.
type Classifier interface {
	Classify(ctx context.Context, in Input, reportPath, outputPath string) error
}

// ExecClassifier runs the krakenuniq binary.
type ExecClassifier struct {
	Binary  string
	DB      string
	Threads int
}

func (c *ExecClassifier) Args(in Input, reportPath, outputPath string) []string {
	threads := c.Threads
	if threads <= 0 {
		threads = 1
	}
	args := []string{
		"--db", c.DB,
		"--threads", strconv.Itoa(threads),
		"--report-file", reportPath,
		"--output", outputPath,
	}
	if in.Paired {
		args = append(args, "--paired")
	}
	return append(args, in.Files...)
}

func (c *ExecClassifier) Classify(ctx context.Context, in Input, reportPath, outputPath string) error {
	path, err := exec.LookPath(c.Binary)
	if err != nil {
		return fmt.Errorf("krakenuniq not available: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, c.Args(in, reportPath, outputPath)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("krakenuniq failed: %w: %s", err, msg)
	}
	return nil
}
