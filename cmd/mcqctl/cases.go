package main

import (
	"fmt"
	"strconv"

	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/spf13/cobra"
)

func parseMCQID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid MCQ id %q", s)
	}
	return id, nil
}

func newConvertCmd(a *app) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "convert <mcq-id>",
		Short: "Convert one MCQ into a clinical case and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMCQID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.mcqService()
			if err != nil {
				return err
			}
			mcq, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load MCQ %d: %w", id, err)
			}

			llm, model := casegen.NewClient(a.cfg.Generator)
			converter := casegen.NewConverter(llm, model, a.cache(cmd.Context()), a.cfg.Conversion)
			result, err := converter.Convert(cmd.Context(), mcq, casegen.ConvertOptions{Debug: debug})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log every conversion step and include the step log")
	return cmd
}

func newCacheClearCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cache-clear [mcq-id]",
		Short: "Drop cached case conversions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.RedisURL == "" {
				fmt.Println("REDIS_URL is not set; the server keeps its cache in memory")
				return nil
			}
			converter := casegen.NewConverter(nil, "", a.cache(cmd.Context()), a.cfg.Conversion)
			if all {
				n, err := converter.ClearAllCaches(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Cleared %d cached cases\n", n)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("pass an MCQ id or --all")
			}
			id, err := parseMCQID(args[0])
			if err != nil {
				return err
			}
			return converter.ClearCache(cmd.Context(), id)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every cached case")
	return cmd
}
