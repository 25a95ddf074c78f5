package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "semrelay",
		Short: "Webhook relay with a semantic answer cache",
		Long: "semrelay bridges an inbound messaging webhook, an Assistants-style " +
			"completion engine, and a semantic cache so equivalent questions are " +
			"answered without re-invoking the engine.",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	root.AddCommand(serve, newResetCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
