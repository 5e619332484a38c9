package model

import (
	"sort"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CommandPlan is built per call and consumed once by a runner. Args are
// always passed as a discrete argv; String renders them for display only.
type CommandPlan struct {
	Program        string            `json:"program"`
	Args           []string          `json:"args"`
	NeedsElevation bool              `json:"needs_elevation"`
	Streaming      bool              `json:"streaming"`
	Env            map[string]string `json:"env,omitempty"`
	Stdin          string            `json:"-"`
}

func (p CommandPlan) String() string {
	words := make([]string, 0, len(p.Args)+len(p.Env)+2)
	if p.NeedsElevation {
		words = append(words, "(elevated)")
	}
	for _, k := range p.EnvKeys() {
		words = append(words, quoteWord(k+"="+p.Env[k]))
	}
	words = append(words, quoteWord(p.Program))
	for _, a := range p.Args {
		words = append(words, quoteWord(a))
	}
	return strings.Join(words, " ")
}

// EnvKeys returns the override keys in a stable order.
func (p CommandPlan) EnvKeys() []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteWord(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return strconv.Quote(s)
	}
	return q
}

type CommandOutcome struct {
	Succeeded  bool   `json:"succeeded"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
}

// Combined returns stdout followed by stderr, the shape operators see in a terminal.
func (o CommandOutcome) Combined() string {
	switch {
	case o.Stdout == "":
		return o.Stderr
	case o.Stderr == "":
		return o.Stdout
	}
	return o.Stdout + "\n" + o.Stderr
}
