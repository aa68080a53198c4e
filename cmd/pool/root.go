package pool

import (
	"fmt"

	"github.com/ValentinKolb/dCtl/api"
	"github.com/ValentinKolb/dCtl/cmd/util"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/rpc/client"
	"github.com/spf13/cobra"
)

var (
	pools *api.PoolClient
	conn  *client.Client

	// PoolCommands represents the pool command group
	PoolCommands = &cobra.Command{
		Use:                "pool",
		Short:              "Manage the storage pools of a system",
		PersistentPreRunE:  setupPoolClient,
		PersistentPostRunE: func(*cobra.Command, []string) error { return conn.Close() },
	}
)

func init() {
	util.SetupRPCClientFlags(PoolCommands)

	PoolCommands.AddCommand(createCmd)
	PoolCommands.AddCommand(createCloudCmd)
	PoolCommands.AddCommand(renameCmd)
	PoolCommands.AddCommand(readCmd)
	PoolCommands.AddCommand(nodesCmd)
	PoolCommands.AddCommand(assignCmd)
	PoolCommands.AddCommand(deleteCmd)
	PoolCommands.AddCommand(bucketsCmd)
}

func setupPoolClient(cmd *cobra.Command, _ []string) (err error) {
	if conn, err = util.Dial(cmd); err != nil {
		return err
	}
	pools = api.NewPoolClient(conn)
	return nil
}

// nodes turns node names into identities
func nodes(names []string) []model.NodeIdentity {
	out := make([]model.NodeIdentity, len(names))
	for i, n := range names {
		out[i] = model.NodeIdentity{Name: n}
	}
	return out
}

var (
	createCmd = &cobra.Command{
		Use:   "create [name] [node...]",
		Short: "Creates a pool, moving the given nodes into it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pools.CreateNodesPool(cmd.Context(), &api.PoolDefinition{Name: args[0], Nodes: nodes(args[1:])}); err != nil {
				return err
			}
			fmt.Println("pool created")
			return nil
		},
	}
	createCloudCmd = &cobra.Command{
		Use:   "create-cloud [name] [connection] [target bucket]",
		Short: "Creates a pool backed by a cloud bucket",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pools.CreateCloudPool(cmd.Context(), &api.CreateCloudPoolParams{Name: args[0], Connection: args[1], TargetBucket: args[2]}); err != nil {
				return err
			}
			fmt.Println("cloud pool created")
			return nil
		},
	}
	renameCmd = &cobra.Command{
		Use:   "rename [name] [new name]",
		Short: "Renames a pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pools.UpdatePool(cmd.Context(), &api.UpdatePoolParams{Name: args[0], NewName: args[1]})
		},
	}
	readCmd = &cobra.Command{
		Use:   "read [name]",
		Short: "Shows the aggregated state of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := pools.ReadPool(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}
	nodesCmd = &cobra.Command{
		Use:   "nodes [name]",
		Short: "Lists the nodes of a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := pools.ListPoolNodes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, n := range def.Nodes {
				fmt.Println(n.Name)
			}
			return nil
		},
	}
	assignCmd = &cobra.Command{
		Use:   "assign [name] [node...]",
		Short: "Moves nodes into a pool",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pools.AssignNodesToPool(cmd.Context(), &api.PoolDefinition{Name: args[0], Nodes: nodes(args[1:])})
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [name]",
		Short: "Deletes an empty pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pools.DeletePool(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("pool deleted")
			return nil
		},
	}
	bucketsCmd = &cobra.Command{
		Use:   "buckets [name]",
		Short: "Lists the buckets storing data in a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := pools.GetAssociatedBuckets(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
)
