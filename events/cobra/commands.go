package cobra

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/chat-hub/bus"
)

// Opener connects to the replication bus the command should read from.
type Opener func(ctx context.Context) (bus.Bus, error)

func Register(ctx context.Context, cmd *cobra.Command, config *viper.Viper, open Opener) {
	cmd.AddCommand(Events(ctx, config, open))
}
