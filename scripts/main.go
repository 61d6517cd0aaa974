package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/scripts/internal"
)

type Command struct {
	Name        string
	Description string
	Run         func(opts internal.Options) error
}

var commands = []Command{
	{
		Name:        "seed-codes",
		Description: "Generate serial codes against the configured database",
		Run:         internal.SeedSerialCodes,
	},
	{
		Name:        "expire-reservations",
		Description: "Expire every lapsed pending reservation once",
		Run:         internal.ExpireReservations,
	},
	{
		Name:        "kafka-check",
		Description: "Check the connection to the configured Kafka brokers",
		Run:         internal.CheckKafkaConnection,
	},
}

func main() {
	var (
		listCommands bool
		cmdName      string
		opts         internal.Options
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&opts.EntityType, "entity-type", "", "Entity type for seeding")
	flag.StringVar(&opts.TenantCode, "tenant-code", "", "Tenant code for seeding")
	flag.IntVar(&opts.Count, "count", 1000, "Number of codes to seed")
	flag.IntVar(&opts.Workers, "workers", 20, "Concurrent seeding workers")
	flag.IntVar(&opts.RatePerSecond, "rate", 200, "Seeding rate limit per second")
	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-20s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	cmd, ok := lo.Find(commands, func(c Command) bool { return c.Name == cmdName })
	if !ok {
		log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
	}

	if err := cmd.Run(opts); err != nil {
		log.Fatalf("Error running command %s: %v", cmdName, err)
	}
}
