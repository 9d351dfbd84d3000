package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/config"
)

const skillTemplate = `---
name: callpath-profiles
description: >
  Parallel-program performance analysis: TAU profiles, call-path trees,
  per-thread hot functions, derived metrics, collapsed stacks, JFR and pprof.
allowed-tools: Bash, Read, Grep, Glob
---

# Call-path Profile Analysis

Analyze profiles with ` + "`{{PP_QUERY_PATH}}`" + ` (a Go binary). Run
` + "`{{PP_QUERY_PATH}} --help`" + ` for the full command and flag reference.

Inputs: a TAU profile directory (profile.N.C.T files, or MULTI__<metric>
subdirectories for several metrics), collapsed stacks, .jfr or pprof files.

## Workflow

1. **Triage**: ` + "`{{PP_QUERY_PATH}} info ./run`" + ` — metrics, threads, hot functions.
2. **Tree**: ` + "`{{PP_QUERY_PATH}} tree ./run -t 0,0,1 --depth 6 --min-pct 0.5`" + `
3. **Callers**: ` + "`{{PP_QUERY_PATH}} callers ./run -m MPI_Recv`" + `
4. **Hottest path**: ` + "`{{PP_QUERY_PATH}} trace ./run`" + `
5. **Across threads**: ` + "`{{PP_QUERY_PATH}} threads ./run`" + `, or ` + "`--mean`" + ` for the average thread.
6. **Compare**: ` + "`{{PP_QUERY_PATH}} diff before/ after/ --min-delta 0.5`" + `
7. **CI gate**: ` + "`{{PP_QUERY_PATH}} hot ./run --assert-below 15.0`" + ` — exits 1 if the top function >= threshold.

## Metrics

` + "`--metric NAME`" + ` picks the metric (default: the first, usually TIME).
` + "`--derive 'FLOPS=PAPI_FP_INS / TIME'`" + ` adds a metric computed per record; use it with
` + "`--metric FLOPS`" + `. Nodes shown as ` + "`[  -  ]`" + ` have no measurement of their own: only a
deeper call path was recorded.

## Interpretation

- **Self% ≈ Total%** → leaf function, the cost is in the function itself.
- **Total% >> Self%** → entry point, drill into ` + "`tree`" + ` to find the real cost.
- Always start with ` + "`info`" + `. Quote specific numbers. Mention the thread and metric.
`

// agent skill directories relative to a base dir (home or project root)
var agentSkillDirs = map[string]string{
	"claude": filepath.Join(".claude", "skills", "callpath-profiles"),
	"codex":  filepath.Join(".agents", "skills", "callpath-profiles"),
}

type initOpts struct {
	force   bool
	project bool
	claude  bool
	codex   bool
	stdout  bool
}

func newInitCmd(o *options) *cobra.Command {
	var opts initOpts
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file and install agent skill files",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdInit(cmd.OutOrStdout(), o, opts)
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&opts.force, "force", false, "overwrite existing files")
	fs.BoolVar(&opts.project, "project", false, "install skills under the working directory instead of home")
	fs.BoolVar(&opts.claude, "claude", false, "install the Claude skill (created if missing)")
	fs.BoolVar(&opts.codex, "codex", false, "install the Codex skill (created if missing)")
	fs.BoolVar(&opts.stdout, "stdout", false, "print the skill file instead of installing anything")
	return cmd
}

func cmdInit(w io.Writer, o *options, opts initOpts) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "cannot determine pp-query path")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	content := strings.ReplaceAll(skillTemplate, "{{PP_QUERY_PATH}}", exe)

	if opts.stdout {
		fmt.Fprint(w, content)
		return nil
	}

	cfgPath := o.configPath
	if cfgPath == "" {
		if cfgPath, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	if err := config.Write(cfgPath, config.Default(), opts.force); err != nil {
		return err
	}
	level.Info(o.logger).Log("msg", "config written", "path", cfgPath)

	var baseDir string
	if opts.project {
		baseDir, err = os.Getwd()
	} else {
		baseDir, err = os.UserHomeDir()
	}
	if err != nil {
		return errors.Wrap(err, "cannot determine base directory")
	}
	for _, agent := range resolveTargets(baseDir, opts.claude, opts.codex) {
		if err := writeSkill(o.logger, baseDir, agent, content, opts.force); err != nil {
			return err
		}
	}
	return nil
}

// resolveTargets decides which agent directories to install to.
// If explicit flags are set, use those (creating dirs as needed).
// Otherwise auto-detect which agent config dirs exist under baseDir.
func resolveTargets(baseDir string, claude, codex bool) []string {
	if claude || codex {
		var targets []string
		if claude {
			targets = append(targets, "claude")
		}
		if codex {
			targets = append(targets, "codex")
		}
		return targets
	}

	var targets []string
	for _, agent := range []string{"claude", "codex"} {
		// the agent's root config dir, e.g. ".claude" or ".agents"
		root := strings.SplitN(agentSkillDirs[agent], string(filepath.Separator), 2)[0]
		if _, err := os.Stat(filepath.Join(baseDir, root)); err == nil {
			targets = append(targets, agent)
		}
	}
	return targets
}

func writeSkill(logger log.Logger, baseDir, agent, content string, force bool) error {
	skillDir := filepath.Join(baseDir, agentSkillDirs[agent])
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create directory %s", skillDir)
	}
	skillPath := filepath.Join(skillDir, "SKILL.md")
	if _, err := os.Stat(skillPath); err == nil && !force {
		return errors.Errorf("%s already exists (use --force to overwrite)", skillPath)
	}
	if err := os.WriteFile(skillPath, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", skillPath)
	}
	level.Info(logger).Log("msg", "skill installed", "path", skillPath)
	return nil
}
