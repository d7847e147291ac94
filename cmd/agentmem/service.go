package main

import (
	"fmt"

	"github.com/flemzord/agentmem/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run or manage agentmem as an OS service",
		Long: `Service installs, removes, and controls agentmem under the platform's
service manager (systemd, launchd, or Windows services). The installed
unit invokes "agentmem service run" with the --config given at install
time.`,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.AddCommand(
		serviceControlCmd("install", "Install the system service"),
		serviceControlCmd("uninstall", "Remove the system service"),
		serviceControlCmd("start", "Start the installed service"),
		serviceControlCmd("stop", "Stop the running service"),
		serviceRunCmd(),
	)
	return cmd
}

func serviceParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func serviceControlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.NewService(serviceParams(cmd))
			if err != nil {
				return err
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Printf("Service %q: %s OK\n", app.ServiceName, action)
			return nil
		},
	}
}

func serviceRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the server under service management",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.NewService(serviceParams(cmd))
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
}
