package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/abiiranathan/goflag"

	"github.com/abiiranathan/doclib/alg"
	"github.com/abiiranathan/doclib/library"
	"github.com/abiiranathan/doclib/search"
	"github.com/abiiranathan/doclib/store"
)

// App bundles the constructed components with the flag targets the
// subcommand handlers read from.
type App struct {
	Store  *store.Store
	Lib    *library.Library
	Engine *search.Engine
	Config *Config

	// Flag targets.
	File    string
	Title   string
	Source  string
	Tags    string
	Summary string
	Query   string
	Tag     string
	Type    string
	ID      string
	Out     string
	Limit   int
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("No matches")
		return
	}
	for _, result := range results {
		fmt.Printf("%6.1f  %s [%s]\n", result.Score, result.Record.Title, result.Record.ID)
		if result.Excerpt != "" {
			fmt.Printf("        %s\n", result.Excerpt)
		}
	}
}

// DefineFlags registers all subcommands and returns the flag context.
func DefineFlags(app *App) *goflag.Context {
	idFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "id",
		ShortName: "i",
		Value:     &app.ID,
		Usage:     "The record ID",
		Required:  true,
	}

	tagFlag := goflag.Flag{
		FlagType:  goflag.FlagString,
		Name:      "tag",
		ShortName: "g",
		Value:     &app.Tag,
		Usage:     "A document tag",
		Required:  true,
	}

	ctx := goflag.NewContext()

	ctx.AddSubCommand("import", "Import an extracted document into the library", func() {
		content, err := os.ReadFile(app.File)
		if err != nil {
			log.Fatalln(err)
		}
		source := app.Source
		if source == "" {
			source = app.File
		}
		rec, err := ImportDocument(app.Store, app.Lib, app.Title, source, content, splitTags(app.Tags))
		if err != nil {
			log.Fatalln(err)
		}
		if app.Summary != "" {
			rec.Summary = app.Summary
			if err := app.Lib.Update(rec); err != nil {
				log.Fatalln(err)
			}
		}
		fmt.Printf("Imported %q as %s\n", rec.Title, rec.ID)
	}).AddFlag(goflag.FlagFilePath, "file", "f", &app.File, "File holding the extracted content", true).
		AddFlag(goflag.FlagString, "title", "t", &app.Title, "Document title", true).
		AddFlag(goflag.FlagString, "source", "s", &app.Source, "Original URL or path (defaults to the file path)", false).
		AddFlag(goflag.FlagString, "tags", "g", &app.Tags, "Comma-separated tags", false).
		AddFlag(goflag.FlagString, "summary", "m", &app.Summary, "Optional summary", false)

	ctx.AddSubCommand("search", "Search the library", func() {
		var filters []search.Filter
		if app.Tag != "" {
			filters = append(filters, search.TagFilter(app.Tag))
		}
		if app.Type != "" {
			filters = append(filters, search.ContentTypeFilter(app.Type))
		}
		results, err := app.Engine.Search(context.Background(), app.Query, filters...)
		if err != nil {
			log.Fatalln(err)
		}
		printResults(results)
	}).AddFlag(goflag.FlagString, "query", "q", &app.Query, "The search query", true).
		AddFlag(goflag.FlagString, "tag", "g", &app.Tag, "Restrict to a tag", false).
		AddFlag(goflag.FlagString, "type", "y", &app.Type, "Restrict to a content type, e.g. md", false)

	ctx.AddSubCommand("list", "List all documents", func() {
		for _, rec := range app.Lib.Snapshot() {
			fmt.Printf("%s  %-40q  %s\n", rec.ID, rec.Title, strings.Join(rec.Tags, ","))
		}
	})

	ctx.AddSubCommand("tag", "Attach a tag to a document", func() {
		if err := app.Lib.AddTag(app.ID, app.Tag); err != nil {
			log.Fatalln(err)
		}
	}).AddFlagPtr(&idFlag).AddFlagPtr(&tagFlag)

	ctx.AddSubCommand("untag", "Detach a tag from a document", func() {
		if err := app.Lib.RemoveTag(app.ID, app.Tag); err != nil {
			log.Fatalln(err)
		}
	}).AddFlagPtr(&idFlag).AddFlagPtr(&tagFlag)

	ctx.AddSubCommand("remove", "Remove a document record, keeping its content blob", func() {
		rec, ok := app.Lib.Get(app.ID)
		if !ok {
			log.Fatalln(library.ErrRecordNotFound)
		}
		if err := app.Lib.Remove(app.ID); err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("Kept content at %s (use the purge command to delete it too)\n", rec.FilePath)
	}).AddFlagPtr(&idFlag)

	ctx.AddSubCommand("purge", "Remove a document record and delete its content blob", func() {
		rec, ok := app.Lib.Get(app.ID)
		if !ok {
			log.Fatalln(library.ErrRecordNotFound)
		}
		if err := app.Lib.Remove(app.ID); err != nil {
			log.Fatalln(err)
		}
		if err := app.Store.Delete(rec.FilePath); err != nil {
			log.Fatalln(err)
		}
	}).AddFlagPtr(&idFlag)

	ctx.AddSubCommand("similar", "Rank documents related to one document", func() {
		rec, ok := app.Lib.Get(app.ID)
		if !ok {
			log.Fatalln(library.ErrRecordNotFound)
		}
		base, err := app.Store.Load(rec.FilePath)
		if err != nil {
			log.Fatalln(err)
		}

		others := make(map[string]string)
		for _, other := range app.Lib.Snapshot() {
			if other.ID == rec.ID {
				continue
			}
			if content, err := app.Store.Load(other.FilePath); err == nil {
				others[other.ID] = string(content)
			}
		}

		ranked := alg.RankSimilar(string(base), others)
		if app.Limit > 0 && len(ranked) > app.Limit {
			ranked = ranked[:app.Limit]
		}
		for _, sim := range ranked {
			if other, ok := app.Lib.Get(sim.ID); ok {
				fmt.Printf("%.3f  %s [%s]\n", sim.Score, other.Title, other.ID)
			}
		}
	}).AddFlagPtr(&idFlag).
		AddFlag(goflag.FlagInt, "limit", "n", &app.Limit, "Max results", false, goflag.Min(1), goflag.Max(100))

	ctx.AddSubCommand("export", "Export the index for backup portability", func() {
		if err := app.Lib.Export(app.Out); err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("Exported index to %s\n", app.Out)
	}).AddFlag(goflag.FlagString, "out", "o", &app.Out, "Destination file", true)

	ctx.AddSubCommand("merge", "Merge an exported index into the library", func() {
		count, err := app.Lib.ImportFrom(app.File)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("Merged %d records\n", count)
	}).AddFlag(goflag.FlagFilePath, "file", "f", &app.File, "Exported index file", true)

	ctx.AddSubCommand("verify", "Check every document's integrity, healing from backups", func() {
		report, err := VerifyAll(context.Background(), app.Store, app.Lib, app.Config.MaxConcurrency)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("Checked %d documents: %d healthy\n", report.Checked, report.Healthy)
		for _, rec := range report.Lost {
			fmt.Printf("LOST: %q (%s)\n", rec.Title, rec.FilePath)
		}
	})

	ctx.AddSubCommand("cleanup", "Remove orphaned backup files", func() {
		if err := app.Store.CleanupOrphans(context.Background()); err != nil {
			log.Fatalln(err)
		}
	})

	return ctx
}
