package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/persistence/db"
	"github.com/hilthontt/burner/internal/infrastructure/repository"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit <room_id>",
	Short: "Prints the lifecycle history of a room.",
	Long: `Reads the room audit log from MongoDB. The log holds lifecycle
transitions only: creation, admissions, extensions, destruction and expiry.
Message content is never recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := viper.GetString(mongoURIKey)
		if uri == "" {
			return errors.New("mongo.uri is not configured (set BURNER_MONGO_URI or --mongo-uri)")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		mongo, err := db.ConnectMongo(ctx, db.MongoConfig{
			URI:               uri,
			Database:          viper.GetString(mongoDatabaseKey),
			AppName:           "burner-cli",
			ConnectionTimeout: 10 * time.Second,
		}, logging.NewNopLogger())
		if err != nil {
			return err
		}
		defer mongo.Close(ctx)

		logs, err := repository.NewRoomAuditLogRepository(mongo.Database()).GetByRoomID(ctx, args[0], limit)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}

		sort.Slice(logs, func(i, j int) bool {
			return logs[i].Timestamp.Before(logs[j].Timestamp)
		})

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(logs)
		}

		if len(logs) == 0 {
			fmt.Fprintf(out, "no audit entries for room %s\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tDETAILS")
		for _, entry := range logs {
			details, _ := json.Marshal(entry.Metadata)
			fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Timestamp.Local().Format(time.DateTime), entry.EventType, details)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Int("limit", 50, "maximum number of entries")
	auditCmd.Flags().Bool("json", false, "print entries as JSON")
	auditCmd.Flags().String("mongo-uri", "", "MongoDB connection string")
	viper.BindPFlag(mongoURIKey, auditCmd.Flags().Lookup("mongo-uri"))
}
