package app

import (
	"github.com/kardianos/service"
)

// ServiceName is the OS service identifier used by install and uninstall.
const ServiceName = "agentmem"

// program adapts the run loop to the service.Interface lifecycle.
type program struct {
	params RunParams
	stop   chan struct{}
	errCh  chan error
}

var _ service.Interface = (*program)(nil)

// Start implements service.Interface. Service managers require it to
// return promptly, so the run loop moves to a goroutine.
func (p *program) Start(_ service.Service) error {
	go func() { p.errCh <- run(p.params, p.stop) }()
	return nil
}

// Stop implements service.Interface. It requests shutdown and waits for
// the run loop to finish, surfacing its error to the service manager.
func (p *program) Stop(_ service.Service) error {
	close(p.stop)
	return <-p.errCh
}

// NewService wraps the server in an OS service (systemd, launchd, SCM).
// The returned service handles install, uninstall, start, stop, and run.
func NewService(params RunParams) (service.Service, error) {
	arguments := []string{"service", "run"}
	if params.ConfigPath != "" {
		arguments = append(arguments, "--config", params.ConfigPath)
	}

	svcCfg := &service.Config{
		Name:        ServiceName,
		DisplayName: "AgentMem Server",
		Description: "Embedding-indexed episodic memory server.",
		Arguments:   arguments,
	}

	prg := &program{
		params: params,
		stop:   make(chan struct{}),
		errCh:  make(chan error, 1),
	}
	return service.New(prg, svcCfg)
}
