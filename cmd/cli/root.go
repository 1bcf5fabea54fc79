package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hilthontt/burner/pkg/roomclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	serverKey        = "server"
	usernameKey      = "username"
	timeoutKey       = "timeout"
	mongoURIKey      = "mongo.uri"
	mongoDatabaseKey = "mongo.database"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "burner",
	Short: "Ephemeral two-person chat rooms",
	Long: `burner creates and joins short-lived chat rooms. A room admits two
people, relays their messages without storing them and disappears when its
timer runs out or either participant destroys it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.burner.yaml)")
	rootCmd.PersistentFlags().String("server", "", "base URL of the burner server (e.g. http://localhost:5000)")
	rootCmd.PersistentFlags().String("username", "", "display name; generated when empty")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "timeout for each HTTP request to the server")

	viper.BindPFlag(serverKey, rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(usernameKey, rootCmd.PersistentFlags().Lookup("username"))
	viper.BindPFlag(timeoutKey, rootCmd.PersistentFlags().Lookup("timeout"))
	viper.SetDefault(serverKey, roomclient.DefaultBaseURL())
	viper.SetDefault(mongoDatabaseKey, "burner")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".burner")
	}

	viper.SetEnvPrefix("BURNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

func newRoomClient() (*roomclient.Client, error) {
	var opts []roomclient.Option
	if timeout := viper.GetDuration(timeoutKey); timeout > 0 {
		opts = append(opts, roomclient.WithHTTPTimeout(timeout))
	}
	return roomclient.New(viper.GetString(serverKey), opts...)
}
