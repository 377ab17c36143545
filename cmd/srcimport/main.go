// srcimport imports upstream source archives and reconstructs them from
// version-controlled trees. All the heavy lifting lives in the library
// packages; this binary only sequences them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pkgforge/srcimport/config"
	"github.com/pkgforge/srcimport/file"
	"github.com/pkgforge/srcimport/format"
	"github.com/pkgforge/srcimport/gitrepo"
	"github.com/pkgforge/srcimport/pointers"
	"github.com/pkgforge/srcimport/source"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(log); err != nil {
		log.Errorf("srcimport: %v", err)
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		return fmt.Errorf("usage: srcimport [-config FILE] import <url|path> | archive <repo> <treeish> <output>")
	}

	cfg := &config.Config{
		UpstreamBranch: "upstream",
		OrigDir:        ".",
		Compression:    config.CompressionConfig{Type: "gzip"},
	}
	if *configPath != "" {
		loaded, err := config.NewConfigManager(*configPath).LoadAndValidateConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx := context.Background()
	switch args[0] {
	case "import":
		if len(args) != 2 {
			return fmt.Errorf("usage: srcimport import <url|path>")
		}
		return runImport(ctx, log, cfg, args[1])
	case "archive":
		if len(args) != 4 {
			return fmt.Errorf("usage: srcimport archive <repo> <treeish> <output>")
		}
		return runArchive(ctx, log, cfg, args[1], args[2], args[3])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runImport fetches an upstream source, unpacks it and repacks it as a
// pristine upstream archive in the orig directory.
func runImport(ctx context.Context, log *zap.SugaredLogger, cfg *config.Config, location string) error {
	path := location
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		path = filepath.Join(cfg.OrigDir, filepath.Base(u.Path))
		log.Infow("downloading upstream source", "url", location, "to", path)
		if _, err := file.Download(ctx, location, &file.DownloadOptions{
			OutputPath:     path,
			CreateDirs:     true,
			OverwriteExist: true,
			MaxFileSize:    cfg.Download.MaxFileSize,
			Timeout:        time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		}); err != nil {
			return err
		}
	}

	src := source.New(path, &source.Options{Log: log})
	guess, err := src.GuessVersion("")
	if err != nil {
		return err
	}
	if guess == nil {
		return fmt.Errorf("cannot determine package name and version from %s", path)
	}
	log.Infow("identified upstream source", "package", guess.Package, "version", guess.Version)

	if src.IsOrig() {
		log.Infow("already a pristine upstream archive", "path", src.Path())
		return nil
	}

	workDir, err := os.MkdirTemp("", "srcimport-")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	if !src.IsDir() {
		if err := src.Unpack(ctx, workDir, cfg.Filters); err != nil {
			return err
		}
	}

	comp, ok := format.CompressionByName(cfg.Compression.Type)
	if !ok {
		return fmt.Errorf("unknown compression %q", cfg.Compression.Type)
	}
	origName := fmt.Sprintf("%s_%s.orig.tar.%s", guess.Package, guess.Version, comp.Extension)
	origPath := filepath.Join(cfg.OrigDir, origName)
	prefix := fmt.Sprintf("%s-%s", guess.Package, guess.Version)

	repacked, err := src.Pack(ctx, origPath, cfg.Filters, &prefix)
	if err != nil {
		return err
	}
	log.Infow("created pristine upstream archive", "path", repacked.Path())
	return nil
}

// runArchive builds one archive from a repository tree, splicing in
// submodule trees when there are any.
func runArchive(ctx context.Context, log *zap.SugaredLogger, cfg *config.Config, repoPath, treeish, output string) error {
	repo, err := gitrepo.Open(repoPath, nil, log)
	if err != nil {
		return err
	}

	repoCfg, err := config.LoadRepoConfig(repo.Path())
	if err != nil {
		return err
	}
	cfg.Apply(repoCfg)

	comp, ok := format.CompressionByName(cfg.Compression.Type)
	if !ok {
		return fmt.Errorf("unknown compression %q", cfg.Compression.Type)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix, _, _ = format.Parse(filepath.Base(output))
	}
	opts := gitrepo.TreeArchiveOptions{
		Treeish:          treeish,
		Output:           output,
		TempBase:         os.TempDir(),
		Prefix:           prefix,
		CompressionName:  comp.Name,
		CompressionLevel: pointers.DerefOr(cfg.Compression.Level, -1),
		CompressionArgs:  comp.ExtraArgs,
	}

	archiver := gitrepo.NewTreeArchiver(nil, log)
	has, err := repo.HasSubmodules(ctx, treeish)
	if err != nil {
		return err
	}
	if has {
		log.Infow("archiving tree with submodules", "treeish", treeish, "output", output)
		return archiver.ArchiveWithSubmodules(ctx, repo, opts)
	}
	log.Infow("archiving tree", "treeish", treeish, "output", output)
	return archiver.ArchiveSingle(ctx, repo, opts)
}
