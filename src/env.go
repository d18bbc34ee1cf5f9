package main

import (
	"sort"
	"strings"
)

func envValue(env []string, key string) string {
	prefix := key + "="
	for _, item := range env {
		if strings.HasPrefix(item, prefix) {
			return item[len(prefix):]
		}
	}
	return ""
}

func setEnvValue(env []string, key, value string) []string {
	prefix := key + "="
	next := append([]string(nil), env...)
	for i, item := range next {
		if strings.HasPrefix(item, prefix) {
			next[i] = prefix + value
			return next
		}
	}
	return append(next, prefix+value)
}

// shellEnv derives the shell's environment from the bridge's own. TERM is
// only replaced when it would leave the shell without usable capabilities;
// extra entries are applied last, in key order.
func shellEnv(env []string, desiredTerm string, extra map[string]string) []string {
	next := append([]string(nil), env...)
	term := strings.TrimSpace(envValue(next, "TERM"))
	if desiredTerm != "" && (term == "" || strings.EqualFold(term, "dumb") || strings.EqualFold(term, "ansi")) {
		next = setEnvValue(next, "TERM", desiredTerm)
	}
	if strings.TrimSpace(envValue(next, "COLORTERM")) == "" {
		next = setEnvValue(next, "COLORTERM", "truecolor")
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		next = setEnvValue(next, k, extra[k])
	}
	return next
}
