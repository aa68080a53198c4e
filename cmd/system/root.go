package system

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/cmd/util"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/spf13/cobra"
)

var (
	systems *api.SystemClient
	conn    *client.Client

	// SystemCommands represents the system command group
	SystemCommands = &cobra.Command{
		Use:                "system",
		Short:              "Provision and configure tenant systems",
		PersistentPreRunE:  setupSystemClient,
		PersistentPostRunE: closeClient,
	}

	// AuthCmd issues a session token
	AuthCmd = &cobra.Command{
		Use:                "auth [email] [system]",
		Short:              "Prints a session token for an account, bound to a system when given",
		Long:               "Prints a session token. The password is read from DCTL_PASSWORD or the --password flag.",
		Args:               cobra.RangeArgs(1, 2),
		PersistentPreRunE:  setupSystemClient,
		PersistentPostRunE: closeClient,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &api.CreateAuthParams{Email: args[0], Password: password(cmd)}
			if len(args) == 2 {
				params.System = args[1]
			}
			reply, err := api.NewAccountClient(conn).CreateAuth(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Println(reply.Token)
			return nil
		},
	}
)

func init() {
	util.SetupRPCClientFlags(SystemCommands)
	util.SetupRPCClientFlags(AuthCmd)
	AuthCmd.Flags().String("password", "", util.WrapString("Password of the account"))
	createCmd.Flags().String("password", "", util.WrapString("Password of the owner account"))
	createCmd.Flags().String("activation-code", "", util.WrapString("License activation code"))
	createCmd.Flags().String("dns-name", "", util.WrapString("Host name of the storage endpoint"))
	createCmd.Flags().String("timezone", "", util.WrapString("Timezone of this member, e.g. Europe/Berlin"))
	createCmd.Flags().String("ntp-server", "", util.WrapString("NTP server of this member"))
	activityCmd.Flags().String("event", "", util.WrapString("Only events with this name or entity prefix (e.g. pool)"))
	activityCmd.Flags().Int("limit", 100, util.WrapString("Maximum number of events"))
	activityCmd.Flags().Bool("csv", false, util.WrapString("Export to the public directory of the server instead of printing"))

	SystemCommands.AddCommand(createCmd)
	SystemCommands.AddCommand(readCmd)
	SystemCommands.AddCommand(listCmd)
	SystemCommands.AddCommand(roleCmd)
	SystemCommands.AddCommand(maintenanceCmd)
	SystemCommands.AddCommand(hostnameCmd)
	SystemCommands.AddCommand(activityCmd)
	SystemCommands.AddCommand(diagnoseCmd)
}

func setupSystemClient(cmd *cobra.Command, _ []string) (err error) {
	if conn, err = util.Dial(cmd); err != nil {
		return err
	}
	systems = api.NewSystemClient(conn)
	return nil
}

func closeClient(*cobra.Command, []string) error {
	return conn.Close()
}

func password(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("password"); p != "" {
		return p
	}
	return os.Getenv("DCTL_PASSWORD")
}

var (
	createCmd = &cobra.Command{
		Use:   "create [name] [owner email]",
		Short: "Provisions a system and its owner account, prints the owner token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			params := &api.CreateSystemParams{Name: args[0], Email: args[1], Password: password(cmd)}
			params.ActivationCode, _ = f.GetString("activation-code")
			params.DNSName, _ = f.GetString("dns-name")
			if tz, _ := f.GetString("timezone"); tz != "" {
				ntp, _ := f.GetString("ntp-server")
				params.TimeConfig = &api.TimeConfig{Timezone: tz, NTPServer: ntp}
			}
			reply, err := systems.CreateSystem(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Println(reply.Token)
			return nil
		},
	}
	readCmd = &cobra.Command{
		Use:   "read",
		Short: "Shows the aggregated state of the system of the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := systems.ReadSystem(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the systems visible to the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := systems.ListSystems(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range list.Systems {
				fmt.Printf("%s\t%s\n", s.ID, s.Name)
			}
			return nil
		},
	}
	roleCmd = &cobra.Command{
		Use:   "role [add|remove] [email] [role]",
		Short: "Grants or revokes a role on the system",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "add":
				return systems.AddRole(cmd.Context(), args[1], args[2])
			case "remove":
				return systems.RemoveRole(cmd.Context(), args[1], args[2])
			default:
				return fmt.Errorf("unknown role action %q, must be add or remove", args[0])
			}
		},
	}
	maintenanceCmd = &cobra.Command{
		Use:   "maintenance [minutes]",
		Short: "Starts a maintenance window, 0 ends it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			return systems.SetMaintenanceMode(cmd.Context(), minutes)
		},
	}
	hostnameCmd = &cobra.Command{
		Use:   "hostname [name]",
		Short: "Sets the host name of the storage endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return systems.UpdateHostname(cmd.Context(), args[0])
		},
	}
	activityCmd = &cobra.Command{
		Use:   "activity",
		Short: "Prints or exports the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			filter := &api.ActivityLogFilter{}
			filter.Event, _ = f.GetString("event")
			filter.Limit, _ = f.GetInt("limit")
			if export, _ := f.GetBool("csv"); export {
				path, err := systems.ExportActivityLog(cmd.Context(), filter)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			}
			logs, err := systems.ReadActivityLog(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return util.PrintJSON(logs.Logs)
		},
	}
	diagnoseCmd = &cobra.Command{
		Use:   "diagnose [node]",
		Short: "Packs a diagnostics archive of the system or one node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			var err error
			if len(args) == 1 {
				path, err = systems.DiagnoseNode(cmd.Context(), &api.DiagnoseNodeParams{ID: args[0], Name: args[0]})
			} else {
				path, err = systems.DiagnoseSystem(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
)
