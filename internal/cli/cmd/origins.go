package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plumekit/geoperm/internal/domain/entity"
)

var originsCmd = &cobra.Command{
	Use:   "origins",
	Short: "Manage origins with a remembered geolocation decision",
}

var originsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List origins with a remembered decision",
	RunE: func(_ *cobra.Command, _ []string) error {
		origins := app.Permissions.Origins()
		if len(origins) == 0 {
			fmt.Println("no remembered geolocation decisions")
			return nil
		}
		for _, origin := range origins {
			decision := entity.DecisionFromAllow(app.Permissions.IsAllowed(origin))
			fmt.Printf("%-10s %s\n", decision, origin)
		}
		return nil
	},
}

var originsSetCmd = &cobra.Command{
	Use:   "set <origin> <granted|denied>",
	Short: "Record a remembered decision for an origin",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		origin := entity.Origin(args[0])
		if origin.IsEmpty() {
			return fmt.Errorf("origin cannot be empty")
		}

		switch entity.PermissionDecision(args[1]) {
		case entity.PermissionGranted:
			app.Permissions.Record(app.Context(), origin, true)
		case entity.PermissionDenied:
			app.Permissions.Record(app.Context(), origin, false)
		default:
			return fmt.Errorf("decision must be %q or %q, got %q",
				entity.PermissionGranted, entity.PermissionDenied, args[1])
		}

		fmt.Printf("recorded %s for %s\n", args[1], origin)
		return nil
	},
}

var originsClearCmd = &cobra.Command{
	Use:   "clear <origin>",
	Short: "Remove the remembered decision for one origin",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		app.Permissions.Clear(app.Context(), entity.Origin(args[0]))
		fmt.Printf("cleared %s\n", args[0])
		return nil
	},
}

var originsClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Remove every remembered decision",
	RunE: func(_ *cobra.Command, _ []string) error {
		app.Permissions.ClearAll(app.Context())
		fmt.Println("cleared all remembered geolocation decisions")
		return nil
	},
}

func init() {
	originsCmd.AddCommand(originsListCmd)
	originsCmd.AddCommand(originsSetCmd)
	originsCmd.AddCommand(originsClearCmd)
	originsCmd.AddCommand(originsClearAllCmd)
	rootCmd.AddCommand(originsCmd)
}
