package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/imagerag/internal/app"
	"github.com/yungbote/imagerag/internal/modules/assets"
	"github.com/yungbote/imagerag/internal/platform/imaging"
)

type pathList []string

func (l *pathList) String() string { return strings.Join(*l, ",") }
func (l *pathList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var paths pathList
	var asJSON bool
	flag.Var(&paths, "path", "image file or directory to ingest (repeatable)")
	flag.BoolVar(&asJSON, "json", false, "print the batch report as JSON")
	flag.Parse()
	for _, arg := range flag.Args() {
		_ = paths.Set(arg)
	}
	if len(paths) == 0 {
		fmt.Println("usage: ingest [-json] -path <file|dir> [...]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := collectImages(paths)
	if err != nil {
		fmt.Printf("collect files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("no supported images found")
		return
	}

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	items := make([]assets.IngestInput, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Printf("read %s: %v\n", f, err)
			continue
		}
		items = append(items, assets.IngestInput{FileName: filepath.Base(f), Data: data})
	}

	report := a.Assets.IngestBatch(ctx, items)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		for _, it := range report.Items {
			if it.OK() {
				fmt.Printf("ok     %-40s %s\n", it.FileName, it.FileLocator)
				continue
			}
			fmt.Printf("failed %-40s stage=%s kind=%s: %s\n", it.FileName, it.FailedStage, it.ErrorKind, it.Error)
		}
		fmt.Printf("ingested=%d failed=%d elapsed=%s\n",
			len(report.Succeeded()), len(report.Failed()), report.FinishedAt.Sub(report.StartedAt))
	}
	if len(report.Failed()) > 0 {
		a.Close()
		os.Exit(1)
	}
}

// collectImages expands directories one level deep into supported image files.
func collectImages(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type()&fs.ModeType != 0 {
				continue
			}
			if imaging.Supported(imaging.MimeFromName(e.Name())) {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	return out, nil
}
