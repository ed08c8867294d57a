// tokenctl mints signed bearer tokens against the configured JWT secret,
// for exercising the websocket flow from the command line.
package main

import (
	"flag"
	"fmt"
	"os"

	"AuroraGate/pkg/config"
	"AuroraGate/pkg/utils"
)

func main() {
	cfgPath := flag.String("config", "config.gateway.yaml", "path to gateway config yaml")
	userID := flag.String("user", "", "user id to put in the token subject")
	username := flag.String("name", "", "username claim")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: tokenctl -user <id> [-name <username>] [-config <path>]")
		os.Exit(2)
	}

	if err := config.InitFromFile(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetJWTConfig(config.Conf.JWTConfig)

	token, err := utils.GenerateToken(*username, *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
