package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/pkg/logger"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive operation console",
	Long: `console opens a line-edited prompt against the configured engine.

Each line is one operation, optionally followed by its parameters as a
JSON object:

  anyclass> createRecord {"className": "Task", "data": {"title": "hi"}}
  anyclass> readTable {"className": "Task", "limit": 10}
  anyclass> listTables

The response envelope prints as indented JSON. Tab completes operation
names; exit or Ctrl-D leaves.`,
	PreRunE: bindFlags,
	RunE:    runConsole,
}

func runConsole(cmd *cobra.Command, _ []string) error {
	st, err := openEngine(cmd.Context(), logger.Nop())
	if err != nil {
		return err
	}
	defer st.Close()

	disp := anyclass.New(st, dispatcherOptions(logger.Nop())...)

	items := make([]readline.PrefixCompleterInterface, 0, len(anyclass.Operations())+2)
	for _, op := range anyclass.Operations() {
		items = append(items, readline.PcItem(string(op)))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "anyclass> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".anyclassd_history"),
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			printOperations()
			continue
		}

		name, rawParams, _ := strings.Cut(line, " ")
		params := map[string]any{}
		if rawParams = strings.TrimSpace(rawParams); rawParams != "" {
			if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
				fmt.Printf("parameters must be a JSON object: %v\n", err)
				continue
			}
		}

		env, _ := disp.Dispatch(cmd.Context(), anyclass.Operation(name), params)
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(string(out))
	}
}

func printOperations() {
	fmt.Println("operations:")
	for _, op := range anyclass.Operations() {
		fmt.Printf("  %s\n", op)
	}
	fmt.Println("usage: <operation> <json-params>")
}
