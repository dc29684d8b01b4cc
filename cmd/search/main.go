package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/yungbote/imagerag/internal/app"
	"github.com/yungbote/imagerag/internal/modules/assets"
)

func main() {
	var topK int
	var fileName, mimeTypes, question string
	flag.IntVar(&topK, "top-k", 3, "number of matches to return")
	flag.StringVar(&fileName, "file-name", "", "restrict matches to this file name")
	flag.StringVar(&mimeTypes, "mime", "", "comma-separated mime types to restrict matches to")
	flag.StringVar(&question, "ask", "", "also answer this question from the matched captions")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" && question == "" {
		fmt.Println("usage: search [-top-k N] [-file-name F] [-mime a,b] [-ask Q] <query>")
		os.Exit(2)
	}
	if query == "" {
		query = question
	}

	_ = godotenv.Load()
	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	filter := assets.Filter{FileName: strings.TrimSpace(fileName)}
	for _, m := range strings.Split(mimeTypes, ",") {
		if m = strings.TrimSpace(m); m != "" {
			filter.MimeTypes = append(filter.MimeTypes, m)
		}
	}

	out, err := a.Assets.RetrieveWhere(ctx, query, topK, filter)
	if err != nil {
		fmt.Printf("search: %v\n", err)
		a.Close()
		os.Exit(1)
	}
	if out.Degraded {
		fmt.Println("query could not be embedded; no matches")
	}
	for _, m := range out.Matches {
		note := ""
		if m.LowRelevance() {
			note = " (low relevance)"
		}
		fmt.Printf("%d. %.4f %s%s\n   %s\n", m.Rank, m.Score, m.FileLocator, note, m.Caption)
	}

	if question == "" {
		return
	}
	ans, err := a.Assets.Ask(ctx, assets.AskInput{Question: question, Matches: out.Matches, TopK: topK})
	if err != nil {
		fmt.Printf("ask: %v\n", err)
		a.Close()
		os.Exit(1)
	}
	fmt.Printf("\n%s\n", ans.Answer)
}
