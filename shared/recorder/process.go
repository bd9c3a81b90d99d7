package recorder

import (
	"fmt"
	"os"
	"os/exec"
)

// Process is a running stream child as seen by the Supervisor.
type Process interface {
	Pid() int
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forces the process to exit.
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
}

// Spawner starts stream processes.
type Spawner interface {
	Spawn() (Process, error)
}

// CommandSpawner runs the rendered Launch with os/exec. The child gets its
// own process group and no stdin/stdout; stderr goes to logFile if set.
type CommandSpawner struct {
	launch  *Launch
	logFile string
}

func NewCommandSpawner(launch *Launch, logFile string) *CommandSpawner {
	return &CommandSpawner{launch: launch, logFile: logFile}
}

func (s *CommandSpawner) Spawn() (Process, error) {
	argv, err := s.launch.Argv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = nil

	var stderr *os.File
	if s.logFile != "" {
		stderr, err = os.OpenFile(s.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open stream log %s: %v", ErrSpawn, s.logFile, err)
		}
		cmd.Stderr = stderr
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if stderr != nil {
			stderr.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, argv[0], err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait(stderr)
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) wait(stderr *os.File) {
	p.err = p.cmd.Wait()
	if stderr != nil {
		stderr.Close()
	}
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Terminate() error {
	return terminateProcess(p.cmd.Process)
}

func (p *execProcess) Kill() error {
	return killProcess(p.cmd.Process)
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}
