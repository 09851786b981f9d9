package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ancexport/internal/config"
	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/domain/fhirexport"
	"github.com/ehr/ancexport/internal/platform/blobstore"
	"github.com/ehr/ancexport/internal/platform/db"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write FHIR Patient exports to a directory",
	}
	cmd.PersistentFlags().String("out", "", "Output directory (defaults to EXPORT_DIR)")

	cmd.AddCommand(&cobra.Command{
		Use:   "patient <id>",
		Short: "Export one patient as patient-<id>-fhir.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExporter(cmd, func(ctx context.Context, x *exporter) error {
				name, err := x.svc.ExportPatient(ctx, x.emitter, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), x.dir.Path(name))
				return nil
			})
		},
	})

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Export every patient as one collection Bundle, or NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ndjson, _ := cmd.Flags().GetBool("ndjson")
			name, _ := cmd.Flags().GetString("file")
			if name == "" {
				name = fhirexport.BundleFilename
				if ndjson {
					name = fhirexport.NDJSONFilename
				}
			}
			return withExporter(cmd, func(ctx context.Context, x *exporter) error {
				var err error
				if ndjson {
					err = x.svc.ExportNDJSON(ctx, x.emitter, name)
				} else {
					err = x.svc.ExportBundle(ctx, x.emitter, name)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), x.dir.Path(name))
				return nil
			})
		},
	}
	allCmd.Flags().String("file", "", "Output file name")
	allCmd.Flags().Bool("ndjson", false, "Write one Patient per line instead of a Bundle")
	cmd.AddCommand(allCmd)

	return cmd
}

type exporter struct {
	svc     *fhirexport.Service
	emitter *fhirexport.Emitter
	dir     *fhirexport.DirSink
}

// newExporter wires the export service to a directory sink, mirrored to the
// archive when one is given.
func newExporter(source fhirexport.PatientSource, outDir string, archive blobstore.BlobStore, logger zerolog.Logger) *exporter {
	dir := fhirexport.NewDirSink(outDir)
	var sink fhirexport.Sink = dir
	if archive != nil {
		sink = fhirexport.NewMultiSink(dir, logger, nil, fhirexport.NewArchiveSink(archive, map[string]string{"origin": "cli"}))
	}
	// A one-shot process has no scrape endpoint, so metrics stay nil here.
	return &exporter{
		svc:     fhirexport.NewService(source, nil),
		emitter: fhirexport.NewEmitter(sink, logger, nil),
		dir:     dir,
	}
}

func outputDir(cmd *cobra.Command, cfg *config.Config) string {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		return out
	}
	return cfg.ExportDir
}

func withExporter(cmd *cobra.Command, fn func(context.Context, *exporter) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}

	source := antenatal.NewService(antenatal.NewPatientRepoPG(pool))
	return fn(ctx, newExporter(source, outputDir(cmd, cfg), archive, logger))
}
