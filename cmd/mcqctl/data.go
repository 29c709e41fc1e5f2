package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/mcqs"
	"github.com/spf13/cobra"
)

func (a *app) mcqService() (*mcqs.Service, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	return mcqs.NewService(mcqs.NewStore(db)), nil
}

func newImportCmd(a *app) *cobra.Command {
	var manifests []string
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import MCQ JSON files, or the sources listed in YAML manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sources []importer.Source
			for _, f := range args {
				sources = append(sources, importer.Source{Path: f})
			}
			if len(manifests) == 0 && len(args) == 0 {
				manifests = a.cfg.Manifests
			}
			for _, path := range manifests {
				m, err := importer.LoadManifest(path)
				if err != nil {
					return err
				}
				sources = append(sources, m.Sources...)
			}
			if len(sources) == 0 {
				return errors.New("nothing to import: pass files or --manifest")
			}

			svc, err := a.mcqService()
			if err != nil {
				return err
			}
			var imported, skipped, invalid int
			for i := range sources {
				src := &sources[i]
				data, err := os.ReadFile(src.Path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", src.Path, err)
				}
				res, err := svc.Import(cmd.Context(), data, src)
				if err != nil {
					return fmt.Errorf("importing %s: %w", src.Path, err)
				}
				fmt.Printf("%s: %d imported, %d skipped, %d invalid of %d\n",
					src.Path, res.Imported, res.Skipped, res.Invalid, res.TotalInPayload)
				for _, e := range res.Errors {
					fmt.Printf("  %s\n", e)
				}
				imported += res.Imported
				skipped += res.Skipped
				invalid += res.Invalid
			}
			fmt.Printf("Total: %d imported, %d skipped, %d invalid\n", imported, skipped, invalid)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&manifests, "manifest", nil, "YAML manifest of sources (repeatable)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var subspecialty, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export MCQs as a JSON envelope or a PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "pdf" {
				return fmt.Errorf("unknown format %q (json or pdf)", format)
			}
			svc, err := a.mcqService()
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if format == "pdf" {
				if out == "" {
					return errors.New("--out is required for pdf export")
				}
				if err := svc.ExportPDF(cmd.Context(), w, subspecialty); err != nil {
					return err
				}
				log.Printf("[export] PDF written to %s", out)
				return nil
			}

			env, err := svc.Export(cmd.Context(), subspecialty)
			if err != nil {
				return err
			}
			if w == os.Stdout {
				return printJSON(env)
			}
			if err := writeJSONFile(w, env); err != nil {
				return err
			}
			log.Printf("[export] %d MCQs written to %s", len(env.MCQs), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&subspecialty, "subspecialty", "", "limit the export to one subspecialty")
	cmd.Flags().StringVar(&format, "format", "json", "json or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout for json)")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <in> <out>",
		Short: "Repair NaN tokens, exam types, answers and image URLs in an MCQ file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fixed, report, err := importer.Normalize(data)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], fixed, 0o644); err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func newFlattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <in> <out>",
		Short: "Flatten a nested MCQ document into a single array",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			flat, err := importer.Flatten(data)
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], flat, 0o644)
		},
	}
}

func newChunkCmd() *cobra.Command {
	var maxItems, maxBytes int
	cmd := &cobra.Command{
		Use:   "chunk <in> <dir>",
		Short: "Split an MCQ array into smaller files for upload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := importer.Chunk(data, maxItems, maxBytes)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(args[1], 0o755); err != nil {
				return err
			}
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			for i, chunk := range res.Chunks {
				name := filepath.Join(args[1], fmt.Sprintf("%s_part%03d.json", base, i+1))
				if err := os.WriteFile(name, chunk, 0o644); err != nil {
					return err
				}
			}
			fmt.Printf("%d chunks written to %s\n", len(res.Chunks), args[1])
			for _, idx := range res.Oversize {
				fmt.Printf("  WARN: item %d exceeds %d bytes on its own\n", idx, maxBytes)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxItems, "max-items", 100, "maximum MCQs per chunk")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 4<<20, "maximum bytes per chunk")
	return cmd
}
