// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/util"
)

// modelsTimeout bounds one model listing request.
const modelsTimeout = 10 * time.Second

func newModelsCmd(g *globalFlags) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the server",
		Long: `List the models installed on the Ollama server. The model new
conversations use is marked with *. When the server cannot be reached the
list reads "Unable to connect!" and the command fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, g, long)
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size, parameters, quantization and age")
	return cmd
}

func runModels(cmd *cobra.Command, g *globalFlags, long bool) error {
	a, err := g.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	current := a.Settings.Get().ModelName

	names, ok := a.Directory.Choices(ctx)
	if !ok {
		fmt.Fprintln(out, names[0])
		return a.Directory.LastError()
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No models installed. Pull one with `ollama pull <model>`.")
		return nil
	}

	if !long {
		for _, n := range names {
			fmt.Fprintln(out, marker(n == current)+n)
		}
		return nil
	}

	client, ok := a.Backend.Client()
	if !ok {
		fmt.Fprintln(out, model.UnableToConnect)
		return model.ErrNoClient
	}
	infos, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintln(out, model.UnableToConnect)
		return err
	}

	width := len("NAME")
	for _, m := range infos {
		width = max(width, util.StringWidth(m.Name))
	}
	width += 2

	fmt.Fprintln(out, "  "+util.PadRight("NAME", width)+util.PadRight("SIZE", 10)+
		util.PadRight("PARAMS", 8)+util.PadRight("QUANT", 10)+"MODIFIED")
	for _, m := range infos {
		modified := "-"
		if !m.ModifiedAt.IsZero() {
			modified = humanize.Time(m.ModifiedAt)
		}
		fmt.Fprintln(out, marker(m.Name == current)+
			util.PadRight(m.Name, width)+
			util.PadRight(m.HumanSize(), 10)+
			util.PadRight(orDash(m.Details.ParameterSize), 8)+
			util.PadRight(orDash(m.Details.QuantizationLevel), 10)+
			modified)
	}
	return nil
}

func marker(current bool) string {
	if current {
		return "* "
	}
	return "  "
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
