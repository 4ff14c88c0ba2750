package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/knights-analytics/relex"
	"github.com/knights-analytics/relex/datasets"
	"github.com/knights-analytics/relex/pipelines"
	util "github.com/knights-analytics/relex/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var inputPath string
var outputPath string
var configPath string
var entityLabelType string
var relationLabelType string
var goldPairsOnly bool
var withMarkers bool
var verbose bool
var modelName string
var destination string
var authToken string

type candidateOutput struct {
	Head       string `json:"head"`
	Tail       string `json:"tail"`
	Label      string `json:"label"`
	MarkedText string `json:"marked_text,omitempty"`
}

type sentenceOutput struct {
	Text       string            `json:"text"`
	Candidates []candidateOutput `json:"candidates"`
}

var candidatesCommand = &cli.Command{
	Name:  "candidates",
	Usage: "Enumerate relation candidate pairs for entity-tagged sentences",
	Description: `Candidates expects input in .jsonl format. Each json line must be of the format
{"tokens": [...], "entities": [{"start": 0, "end": 1, "type": "LOC"}], "relations": [{"head": 1, "tail": 0, "type": "capital-of"}]}.
Every sentence is written back as one json line with its enumerated candidate pairs and their gold or no-relation labels.`,
	ArgsUsage: `
				--input: path to a .jsonl file or a folder with .jsonl files to process. If omitted, the input will be read from stdin.
				--output: path to the output .jsonl file. If omitted, the output will be sent to stdout.
				--config: path to a pipeline configuration json with pair filters, label types and the gold-pairs-only flag.
				`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path to the input data",
			Aliases:     []string{"i"},
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to output",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to a pipeline configuration json",
			Aliases:     []string{"c"},
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "entityLabelType",
			Usage:       "Entity label type of the annotations",
			Destination: &entityLabelType,
			Value:       "ner",
		},
		&cli.StringFlag{
			Name:        "relationLabelType",
			Usage:       "Relation label type of the annotations",
			Destination: &relationLabelType,
			Value:       "relation",
		},
		&cli.BoolFlag{
			Name:        "goldOnly",
			Usage:       "Drop candidate pairs without a gold relation annotation",
			Destination: &goldPairsOnly,
		},
		&cli.BoolFlag{
			Name:        "markers",
			Usage:       "Also emit the marker-injected sentence text per candidate",
			Destination: &withMarkers,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Usage:       "Print a processing summary to stderr",
			Aliases:     []string{"v"},
			Destination: &verbose,
		},
	},
	Action: func(ctx *cli.Context) error {
		config := relex.NewConfig(relationLabelType, entityLabelType)
		if configPath != "" {
			loaded, err := relex.LoadConfig(configPath)
			if err != nil {
				return err
			}
			config = loaded
		}
		if goldPairsOnly {
			config.TrainOnGoldPairsOnly = true
		}
		var filter *pipelines.PairFilter
		if len(config.EntityPairFilters) > 0 {
			filter = pipelines.NewPairFilter(config.EntityPairFilters)
		}
		injector := pipelines.NewMarkerInjector(nil)

		var writer io.WriteCloser
		if outputPath != "" {
			var err error
			writer, err = util.FileSystem.NewWriter(ctx.Context, outputPath, os.ModePerm)
			if err != nil {
				return err
			}
		} else {
			writer = os.Stdout
		}
		defer func() {
			if outputPath != "" {
				_ = writer.Close()
			}
		}()

		var sentenceCount int
		var candidateCounts []float32

		processLine := func(lineBytes []byte) error {
			var example datasets.RelationExample
			if err := json.Unmarshal(lineBytes, &example); err != nil {
				return fmt.Errorf("parsing input line: %w", err)
			}
			sentence, err := example.ToSentence(config.EntityLabelType, config.LabelType)
			if err != nil {
				return err
			}
			pairs := pipelines.EnumerateCandidates(sentence, config.LabelType, config.EntityLabelType, filter, config.TrainOnGoldPairsOnly)

			out := sentenceOutput{Text: sentence.Text(), Candidates: make([]candidateOutput, 0, len(pairs))}
			for _, pair := range pairs {
				candidate := candidateOutput{
					Head:  pair.Head.IDText(),
					Tail:  pair.Tail.IDText(),
					Label: pair.Label,
				}
				if withMarkers {
					expanded, _, _, markerErr := injector.AddEntityMarkers(sentence, pair.Head, pair.Tail)
					if markerErr != nil {
						return markerErr
					}
					candidate.MarkedText = expanded.Text()
				}
				out.Candidates = append(out.Candidates, candidate)
			}

			outputBytes, marshalErr := json.Marshal(out)
			if marshalErr != nil {
				return marshalErr
			}
			if _, writeErr := writer.Write(append(outputBytes, '\n')); writeErr != nil {
				return writeErr
			}
			sentenceCount++
			candidateCounts = append(candidateCounts, float32(len(pairs)))
			return nil
		}

		if inputPath != "" {
			exists, err := util.FileExists(inputPath)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("file %s does not exist", inputPath)
			}
			fileWalker := func(_ context.Context, baseURL string, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
				if filepath.Ext(info.Name()) == ".jsonl" {
					if err := readInputs(reader, processLine); err != nil {
						return false, err
					}
				}
				return true, nil
			}
			if err := util.FileSystem.Walk(ctx.Context, inputPath, fileWalker); err != nil {
				return err
			}
		} else if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			if err := readInputs(os.Stdin, processLine); err != nil {
				return err
			}
		}

		if verbose && sentenceCount > 0 {
			fmt.Fprintf(os.Stderr, "processed %d sentences, %.2f candidates per sentence on average\n",
				sentenceCount, util.Mean(candidateCounts))
		}
		return nil
	},
}

var downloadCommand = &cli.Command{
	Name:  "download",
	Usage: "Download a pretrained relation extraction encoder",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Registry short name (relations, relations-fast) or huggingface repository id",
			Aliases:     []string{"m"},
			Destination: &modelName,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "destination",
			Usage:       "Folder where to store the downloaded model",
			Aliases:     []string{"d"},
			Destination: &destination,
			Value:       "models",
		},
		&cli.StringFlag{
			Name:        "token",
			Usage:       "Huggingface auth token for gated repositories",
			Destination: &authToken,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Usage:       "Print download progress",
			Aliases:     []string{"v"},
			Destination: &verbose,
		},
	},
	Action: func(_ *cli.Context) error {
		options := relex.NewDownloadOptions()
		options.AuthToken = authToken
		options.Verbose = verbose
		modelPath, err := relex.DownloadModel(modelName, destination, options)
		if err != nil {
			return err
		}
		fmt.Println(modelPath)
		return nil
	},
}

func readInputs(inputSource io.Reader, process func([]byte) error) error {
	reader := bufio.NewReader(inputSource)
	for {
		lineBytes, err := util.ReadLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(lineBytes) > 0 {
					return process(lineBytes)
				}
				return nil
			}
			return err
		}
		if len(lineBytes) == 0 {
			continue
		}
		if err := process(lineBytes); err != nil {
			return err
		}
	}
}

func main() {
	app := &cli.App{
		Name:     "relex",
		Usage:    "Relation extraction candidate building from the command line",
		Commands: []*cli.Command{candidatesCommand, downloadCommand},
	}
	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}
