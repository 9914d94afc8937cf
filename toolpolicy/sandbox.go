package toolpolicy

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/njfio/tau/tauerrors"
)

// ResolvedCommand is the shell/command pair the execution gate actually
// runs, after OS sandbox resolution.
type ResolvedCommand struct {
	Shell     string
	Command   string
	Sandboxed bool
}

// bwrapArgs builds the bubblewrap argument list the teacher's sandboxed
// bash-tool launcher materializes on Linux: a fresh mount namespace, new
// session, proc/dev/tmpfs mounts, a read-only bind of the host root, and
// a read-write bind of cwd.
func bwrapArgs(shell, command, cwd string) []string {
	args := []string{
		"--new-session", "--unshare-all", "--share-net",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--ro-bind", "/", "/",
	}
	if cwd != "" {
		args = append(args, "--bind", cwd, cwd, "--chdir", cwd)
	}
	return append(args, shell, "-c", command)
}

// ResolveSandbox materializes the command to execute given the policy's
// sandbox mode and optional command template.
func ResolveSandbox(p Policy, shell, command, cwd string, lookPath func(string) (string, error)) (ResolvedCommand, error) {
	if p.OSSandboxCommandTemplate != "" {
		materialized := strings.NewReplacer(
			"{shell}", shell,
			"{command}", command,
			"{cwd}", cwd,
		).Replace(p.OSSandboxCommandTemplate)
		return ResolvedCommand{Shell: shell, Command: materialized, Sandboxed: true}, nil
	}

	switch p.OSSandboxMode {
	case SandboxOff, "":
		return ResolvedCommand{Shell: shell, Command: command, Sandboxed: false}, nil

	case SandboxAuto:
		launcher, err := resolveLauncher(lookPath)
		if err != nil {
			return ResolvedCommand{Shell: shell, Command: command, Sandboxed: false}, nil
		}
		return ResolvedCommand{
			Shell:     launcher,
			Command:   strings.Join(bwrapArgs(shell, command, cwd), " "),
			Sandboxed: true,
		}, nil

	case SandboxForce:
		launcher, err := resolveLauncher(lookPath)
		if err != nil {
			return ResolvedCommand{}, tauerrors.New(tauerrors.CodeSandboxUnavailable, "os sandbox required but no launcher is available").WithCause(err)
		}
		return ResolvedCommand{
			Shell:     launcher,
			Command:   strings.Join(bwrapArgs(shell, command, cwd), " "),
			Sandboxed: true,
		}, nil

	default:
		return ResolvedCommand{}, tauerrors.Newf(tauerrors.CodeSandboxUnavailable, "unsupported os_sandbox_mode %q", p.OSSandboxMode)
	}
}

func resolveLauncher(lookPath func(string) (string, error)) (string, error) {
	if runtime.GOOS != "linux" {
		return "", tauerrors.New(tauerrors.CodeSandboxUnavailable, "sandbox launcher only available on linux")
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return lookPath("bwrap")
}
