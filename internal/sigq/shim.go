//go:build unix

package sigq

import (
	"os"
	"os/exec"

	"github.com/docker/docker/pkg/reexec"
	"golang.org/x/sys/unix"
)

// ExitExecFailure is the exit status of a child whose target program could
// not be executed.
const ExitExecFailure = 127

const (
	handshakeInit = "scriptq-handshake-exec"
	execInit      = "scriptq-exec"

	// handshakeFD is where the child finds the read end of its handshake pipe.
	handshakeFD = 3
)

func init() {
	reexec.Register(handshakeInit, handshakeMain)
	reexec.Register(execInit, execMain)
}

// handshakeMain runs in the forked child. The read returns once the owner
// closes both pipe ends inside Wait; its result is irrelevant.
func handshakeMain() {
	if f := os.NewFile(handshakeFD, "handshake"); f != nil {
		var buf [4]byte
		_, _ = f.Read(buf[:])
		_ = f.Close()
	}
	execMain()
}

func execMain() {
	argv := os.Args[1:]
	if len(argv) == 0 {
		os.Exit(ExitExecFailure)
	}
	_ = unix.Exec(argv[0], argv, os.Environ())
	os.Exit(ExitExecFailure)
}

// shimCommand builds the re-exec of the host binary that becomes the child.
// Standard streams are always real files so exec.Cmd never starts copying
// goroutines that would need cmd.Wait; the child is reaped with wait4.
func shimCommand(init string, argv, env []string, dir string, stdin, stdout, stderr *os.File) *exec.Cmd {
	cmd := reexec.Command(append([]string{init}, argv...)...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdin = fileOr(stdin, os.Stdin)
	cmd.Stdout = fileOr(stdout, os.Stdout)
	cmd.Stderr = fileOr(stderr, os.Stderr)
	return cmd
}

func fileOr(f, fallback *os.File) *os.File {
	if f != nil {
		return f
	}
	return fallback
}
