package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

const (
	configFilePath = "./configs/config.yaml"
	maxDisplayText = 1000
)

// fileList collects repeated -file flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	if v == "" {
		return errors.New("empty file path")
	}
	*f = append(*f, v)
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var files fileList
	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	flag.Var(&files, "file", "Document to index (repeatable)")
	query := flag.String("query", "", "Query to search for; starts an interactive prompt when empty")
	topK := flag.Int("top-k", 0, "Number of results to return (default from config)")
	threshold := flag.Float64("threshold", 0, "Minimum similarity (default from config)")
	source := flag.String("source", "", "Only search chunks from this document")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	dryRun := flag.Bool("dry-run", false, "Print the chunks of each file without embedding them")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "top-k":
			cfg.RAG.TopK = *topK
		case "threshold":
			cfg.RAG.Threshold = *threshold
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid options")
	}
	log.Debug().Interface("rag", cfg.RAG).Str("provider", cfg.EmbedLLM.Provider).Msg("Loaded config")

	if len(files) == 0 {
		log.Fatal().Strs("supported", parser.SupportedExtensions).Msg("Please provide at least one document using the -file flag")
	}

	if *dryRun {
		printChunks(os.Stdout, files, cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	vectorizer := embedding.NewVectorizer(embedding.Shared(&cfg.EmbedLLM))
	session := rag.NewRAG(parser.NewFileExtractor(), vectorizer, &cfg.RAG)

	report, err := session.BuildIndex(ctx, sources(files))
	if err != nil {
		log.Fatal().Err(err).Msg("Error building index")
	}
	for _, s := range report.Skipped {
		log.Warn().Str("source", s.Source).Str("reason", s.Reason).Msg("Document not indexed")
	}
	log.Info().Int("chunks", report.Chunks).Strs("documents", report.Indexed).Msg("Index ready")

	opts := session.DefaultSearchOptions()
	opts.SourceID = *source

	if *query != "" {
		if err := runQuery(ctx, os.Stdout, session, *query, opts, *asJSON); err != nil {
			log.Fatal().Err(err).Msg("Error searching")
		}
		return
	}
	interactive(ctx, os.Stdin, os.Stdout, session, opts, *asJSON)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func sources(files []string) []rag.Source {
	out := make([]rag.Source, len(files))
	for i, f := range files {
		out[i] = rag.Source{Path: f}
	}
	return out
}

// printChunks shows how each file would be split, without touching the embedding model.
func printChunks(w io.Writer, files []string, cfg *config.Config) {
	extractor := parser.NewFileExtractor()
	for _, src := range sources(files) {
		id := src.SourceID()
		chunks, err := parser.ProcessDocument(extractor, src.Path, id, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
		if err != nil {
			log.Error().Err(err).Str("source", id).Msg("Error parsing document")
			continue
		}
		log.Info().Str("source", id).Int("chunks", len(chunks)).Msg("Parsed document")
		helper.FprettyPrint(w, chunks)
	}
}

func runQuery(ctx context.Context, w io.Writer, session *rag.RAG, query string, opts rag.SearchOptions, asJSON bool) error {
	results, err := session.Search(ctx, query, opts)
	if err != nil {
		return err
	}
	if asJSON {
		helper.FprettyPrint(w, results)
		return nil
	}
	printResults(w, query, results)
	return nil
}

// interactive reads one query per line until EOF or :quit.
func interactive(ctx context.Context, in io.Reader, out io.Writer, session *rag.RAG, opts rag.SearchOptions, asJSON bool) {
	fmt.Fprintln(out, "Enter a query (:stats, :clear, :quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			log.Warn().Msg("Please enter a query")
			continue
		case ":quit", ":q":
			return
		case ":clear":
			session.Clear()
			fmt.Fprintln(out, "Index cleared")
			continue
		case ":stats":
			helper.FprettyPrint(out, session.Stats())
			continue
		}

		if err := runQuery(ctx, out, session, line, opts, asJSON); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("Error searching")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}

func printResults(w io.Writer, query string, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No chunks matched %q\n", query)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSIMILARITY\tSOURCE\tPAGE\tTEXT")
	for i, r := range results {
		text := strings.Join(strings.Fields(r.Text), " ")
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%d\t%s\n", i+1, r.Similarity, r.SourceID, r.PageNumber, helper.Truncate(text, maxDisplayText))
	}
	tw.Flush()
}
