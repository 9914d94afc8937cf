package toolpolicy

import (
	"path/filepath"
	"strings"
)

// gateResult is what one gate function returns: its decision, a human
// detail string for the trace, and the reason_code surfaced on deny.
type gateResult struct {
	decision   Decision
	detail     string
	reasonCode string
}

func allow(detail string) gateResult { return gateResult{decision: DecisionAllow, detail: detail} }
func deny(reasonCode, detail string) gateResult {
	return gateResult{decision: DecisionDeny, detail: detail, reasonCode: reasonCode}
}

// lengthGate rejects commands longer than max_command_length.
func lengthGate(p Policy, inv Invocation) gateResult {
	if p.MaxCommandLength > 0 && len(inv.Command) > p.MaxCommandLength {
		return deny("max_command_length", "command exceeds max_command_length")
	}
	return allow("")
}

// newlineGate rejects embedded newlines unless explicitly allowed.
func newlineGate(p Policy, inv Invocation) gateResult {
	if !p.AllowCommandNewlines && (strings.Contains(inv.Command, "\n") || strings.Contains(inv.Command, "\r")) {
		return deny("command_newlines_disallowed", "command contains newline characters")
	}
	return allow("")
}

// leadingExecutable extracts the command's leading executable token,
// skipping shell-style NAME=VALUE environment assignments.
func leadingExecutable(command string) string {
	fields := strings.Fields(command)
	for _, f := range fields {
		if strings.Contains(f, "=") && isAssignment(f) {
			continue
		}
		return f
	}
	return ""
}

func isAssignment(field string) bool {
	idx := strings.IndexByte(field, '=')
	if idx <= 0 {
		return false
	}
	name := field[:idx]
	for i, r := range name {
		if i == 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
		if i > 0 && !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// allowlistGate rejects commands whose leading executable is not in the
// configured allowlist. An empty allowlist means no restriction.
// Entries with a trailing "*" match by prefix.
func allowlistGate(p Policy, inv Invocation) gateResult {
	if len(p.AllowedCommands) == 0 {
		return allow("allowlist empty, no restriction")
	}
	exe := leadingExecutable(inv.Command)
	for _, allowed := range p.AllowedCommands {
		if strings.HasSuffix(allowed, "*") {
			if strings.HasPrefix(exe, strings.TrimSuffix(allowed, "*")) {
				return allow("matched prefix rule " + allowed)
			}
			continue
		}
		if exe == allowed {
			return allow("matched rule " + allowed)
		}
	}
	return deny("command_not_allowlisted", "executable "+exe+" is not in allowed_commands")
}

// cwdContainmentGate verifies a supplied cwd canonicalizes under one of
// the allowed roots.
func cwdContainmentGate(p Policy, inv Invocation, resolve func(string) (string, error)) gateResult {
	if inv.Cwd == "" {
		return allow("no cwd supplied")
	}
	resolved, err := resolve(inv.Cwd)
	if err != nil {
		return deny("cwd_resolution_failed", err.Error())
	}
	for _, root := range p.AllowedRoots {
		absRoot, rerr := resolve(root)
		if rerr != nil {
			continue
		}
		rel, relErr := filepath.Rel(absRoot, resolved)
		if relErr == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return allow("cwd contained under " + root)
		}
	}
	return deny("cwd_outside_allowed_roots", "cwd is not under any allowed root")
}
