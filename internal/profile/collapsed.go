package profile

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

var (
	collapsedLineRe  = regexp.MustCompile(`^(.+)\s+(\d+(?:\.\d+)?)$`)
	threadFrameRe    = regexp.MustCompile(`^\[(.+?)(?:\s+tid=\d+)?\]$`)
	annotatedFrameRe = regexp.MustCompile(`^(.+?):(\d+)(?:_\[[^\]]*\])?$`)
)

// parseCollapsed reads collapsed-stack text: one "frame;frame;frame count"
// per line, optionally led by a "[thread]" frame.
func parseCollapsed(r io.Reader, logger log.Logger) (*Dataset, error) {
	var stacks []stack
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		m := collapsedLineRe.FindStringSubmatch(line)
		if m == nil {
			level.Debug(logger).Log("msg", "skipping malformed collapsed line", "line", lineNo)
			continue
		}
		count, _ := strconv.ParseFloat(m[2], 64)
		if count <= 0 {
			continue
		}

		parts := strings.Split(m[1], ";")
		thread := ""
		startIdx := 0
		if tm := threadFrameRe.FindStringSubmatch(parts[0]); tm != nil {
			thread = tm[1]
			startIdx = 1
		}

		frames := make([]string, 0, len(parts)-startIdx)
		for _, part := range parts[startIdx:] {
			// line-number annotations would split one function into many paths
			if am := annotatedFrameRe.FindStringSubmatch(part); am != nil {
				part = am[1]
			}
			frames = append(frames, part)
		}
		if len(frames) == 0 {
			continue
		}
		stacks = append(stacks, stack{frames: frames, values: []float64{count}, thread: thread})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read collapsed stacks")
	}
	return fromStacks("collapsed", []string{"SAMPLES"}, stacks), nil
}
