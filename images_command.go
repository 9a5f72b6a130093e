package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/config"
)

type imagesOptions struct {
	cliOptions
	json bool
}

func newImagesCommand(exitCode *int, base func() cliOptions) *cobra.Command {
	var jsonFlag bool
	cmd := &cobra.Command{
		Use:   "images",
		Short: "列出图片目录中已缓存的图片",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "以 JSON 输出")
	cmd.RunE = runWith(exitCode, func() int {
		return runImages(imagesOptions{cliOptions: base(), json: jsonFlag})
	})
	return cmd
}

func runImages(opts imagesOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	store, err := cache.NewStore(cfg.Global.ImagesPath())
	if err != nil {
		fmt.Fprintf(stdErr, "打开图片目录失败: %v\n", err)
		return 1
	}
	entries, err := store.List(context.Background())
	if err != nil {
		fmt.Fprintf(stdErr, "读取图片目录失败: %v\n", err)
		return 1
	}

	if opts.json {
		if entries == nil {
			entries = []cache.Entry{}
		}
		enc := json.NewEncoder(stdOut)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(stdErr, "输出 JSON 失败: %v\n", err)
			return 1
		}
		return 0
	}

	if len(entries) == 0 {
		fmt.Fprintf(stdOut, "%s 中没有图片\n", store.Dir())
		return 0
	}

	prefix := cfg.Global.PublicImagePrefix()
	rows := make([][]string, 0, len(entries))
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
		rows = append(rows, []string{
			entry.Name,
			prefix + "/" + entry.Name,
			humanize.Bytes(uint64(entry.SizeBytes)),
			humanize.Time(entry.ModTime),
		})
	}
	footer := []string{strconv.Itoa(len(entries)) + " images", "", humanize.Bytes(uint64(total)), ""}
	fmt.Fprintln(stdOut, renderTable(
		[]string{"Name", "Path", "Size", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		footer,
	))
	return 0
}
