package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soilnet/ismn/pkg/collection"
	"github.com/soilnet/ismn/pkg/export"
	"github.com/soilnet/ismn/pkg/storage/s3"
	"github.com/soilnet/ismn/pkg/tui"
)

var (
	publishYes     bool
	publishList    bool
	publishPresign time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish <archive>",
	Short: "Upload the index to S3",
	Long: `Uploads the index table, a Parquet export and the error log of the last
build to <bucket>/<prefix>/<archive>/<run>/ and updates latest.json.
The bucket comes from publish.bucket or ISMN_S3_BUCKET.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().BoolVarP(&publishYes, "yes", "y", false, "Do not ask for confirmation")
	publishCmd.Flags().BoolVar(&publishList, "list", false, "List published runs instead of publishing")
	publishCmd.Flags().DurationVar(&publishPresign, "presign", 0, "Print download URLs valid for this long")
}

func newPublisher(cmd *cobra.Command) (*s3.Publisher, error) {
	p := cfg.Publish
	sc := s3.DefaultConfig(p.Bucket, p.Region)
	sc.Endpoint = p.Endpoint
	sc.UsePathStyle = p.UsePathStyle
	sc.AccessKeyID = p.AccessKey
	sc.SecretAccessKey = p.SecretKey

	client, err := s3.NewClient(cmd.Context(), sc)
	if err != nil {
		return nil, err
	}
	return s3.NewPublisher(client, p.Prefix, log), nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	cmd.SetContext(ctx)

	pub, err := newPublisher(cmd)
	if err != nil {
		return err
	}
	name := archiveStem(args[0])

	if publishList {
		runs, err := pub.Runs(ctx, name)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Println(r)
		}
		return nil
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, rep, err := a.loadIndex(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := os.MkdirAll(cfg.Build.ScratchDir, 0755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(cfg.Build.ScratchDir, "publish-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	table := filepath.Join(tmp, "index.csv")
	if err := collection.WriteTableFile(table, c); err != nil {
		return err
	}
	opts := export.Options{
		Compression:  cfg.Export.Compression,
		RowGroupSize: cfg.Export.RowGroupSize,
		Metadata:     map[string]string{"archive": name, "version": version},
	}
	pq, err := export.WriteParquetFile(filepath.Join(tmp, "index.parquet"), c, opts)
	if err != nil {
		return err
	}

	artifacts := []s3.Artifact{
		{Name: "index.csv", Path: table, ContentType: s3.ContentTypeCSV},
		{Name: "index.parquet", Path: pq.Path, ContentType: s3.ContentTypeParquet},
	}
	if rep == nil {
		// Reused table: the counts come from the index, there is no run to report.
		rep = &collection.Report{Archive: args[0], Files: c.Len(), Networks: len(c.Networks())}
	}
	if rep.LogPath != "" {
		if _, err := os.Stat(rep.LogPath); err == nil {
			artifacts = append(artifacts, s3.Artifact{Name: "errors.log", Path: rep.LogPath, ContentType: s3.ContentTypeLog})
		}
	}

	if !publishYes {
		prompt := fmt.Sprintf("Publish %d files of %s to s3://%s/%s? [Y/n] ", c.Len(), name, cfg.Publish.Bucket, cfg.Publish.Prefix)
		if !tui.Confirm(os.Stdin, os.Stdout, prompt) {
			return nil
		}
	}

	m, err := pub.Publish(ctx, name, rep, artifacts...)
	if err != nil {
		return err
	}
	log.Info("index published", zap.String("run", m.RunID), zap.Int("artifacts", len(m.Artifacts)))
	links := make(map[string]string, len(m.Artifacts))
	for k, key := range m.Artifacts {
		links[k] = fmt.Sprintf("s3://%s/%s", cfg.Publish.Bucket, key)
	}
	if publishPresign > 0 {
		if links, err = pub.Links(ctx, m, publishPresign); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(links) {
		fmt.Printf("  %-14s %s\n", k, links[k])
	}
	return nil
}
