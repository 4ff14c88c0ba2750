package relex

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/go-huggingface/hub"

	util "github.com/knights-analytics/relex/utils"
)

// modelRegistry maps short names for pretrained relation extraction models to
// their hosted repositories.
var modelRegistry = map[string]string{
	"relations":      "KnightsAnalytics/relations",
	"relations-fast": "KnightsAnalytics/relations-fast",
}

// ResolveModelName expands a registry short name to its repository id. Names
// not present in the registry are returned unchanged.
func ResolveModelName(modelName string) string {
	if resolved, ok := modelRegistry[modelName]; ok {
		return resolved
	}
	return modelName
}

// DownloadOptions is a struct of options that can be passed to DownloadModel.
type DownloadOptions struct {
	AuthToken             string
	Branch                string
	MaxRetries            int
	RetryInterval         int
	ConcurrentConnections int
	Verbose               bool
}

// NewDownloadOptions creates new DownloadOptions struct with default values.
// Override the values to specify different download options.
func NewDownloadOptions() DownloadOptions {
	d := DownloadOptions{}
	d.Branch = "main"
	d.MaxRetries = 5
	d.RetryInterval = 5
	d.ConcurrentConnections = 5
	return d
}

// DownloadModel downloads a pretrained relation extraction encoder, by
// registry short name or repository id. Before the model is downloaded,
// validation occurs to ensure there is a model.onnx and a tokenizer.json file,
// the two files the transformer embedder needs.
func DownloadModel(modelName string, destination string, options DownloadOptions) (string, error) {
	modelName = ResolveModelName(modelName)
	modelPath := path.Join(destination, strings.Replace(modelName, "/", "_", -1))

	repo := hub.New(modelName)
	if options.AuthToken != "" {
		repo = repo.WithAuth(options.AuthToken)
	}
	if options.ConcurrentConnections > 0 {
		repo.MaxParallelDownload = options.ConcurrentConnections
	}
	if options.Verbose {
		repo.Verbosity = 1
		repo.WithProgressBar(true)
	} else {
		repo.Verbosity = 0
		repo.WithProgressBar(false)
	}
	if options.Branch != "" {
		repo.WithRevision(options.Branch)
	}

	downloadFiles, err := validateDownloadModel(repo, options)
	if err != nil {
		return "", err
	}

	for i := 0; i < options.MaxRetries; i++ {
		downloadPaths, downloadErr := repo.DownloadFiles(downloadFiles...)
		if downloadErr != nil {
			if options.Verbose {
				fmt.Printf("Warning: attempt %d / %d failed, error: %s\n", i+1, options.MaxRetries, downloadErr)
			}
			time.Sleep(time.Duration(options.RetryInterval) * time.Second)
			continue
		}

		for j, downloadPath := range downloadPaths {
			truePath, symErr := filepath.EvalSymlinks(downloadPath)
			if symErr != nil {
				return "", symErr
			}
			copyErr := util.CopyFile(truePath, fmt.Sprintf("%s/%s", modelPath, path.Base(downloadFiles[j])))
			if copyErr != nil {
				return "", copyErr
			}
		}

		if options.Verbose {
			fmt.Printf("\nDownload of %s completed successfully\n", modelName)
		}
		return modelPath, nil
	}

	return "", fmt.Errorf("failed to download %s after %d attempts", modelName, options.MaxRetries)
}

func validateDownloadModel(repo *hub.Repo, options DownloadOptions) ([]string, error) {
	for i := 0; i < options.MaxRetries; i++ {
		err := repo.DownloadInfo(false)
		if err == nil {
			break
		}
		if options.Verbose {
			fmt.Printf("Warning: list repo attempt %d / %d failed, error: %s\n", i+1, options.MaxRetries, err)
		}
		if i+1 == options.MaxRetries {
			return nil, err
		}
		time.Sleep(time.Duration(options.RetryInterval) * time.Second)
	}

	tokenizerPath := ""
	onnxPath := ""
	var toDownload []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, err
		}

		baseFileName := filepath.Base(fileName)
		switch {
		case baseFileName == "tokenizer.json":
			tokenizerPath = fileName
		case baseFileName == "model.onnx":
			onnxPath = fileName
		case baseFileName == "special_tokens_map.json" ||
			baseFileName == "tokenizer_config.json" ||
			baseFileName == "config.json" ||
			baseFileName == "vocab.txt":
			toDownload = append(toDownload, fileName)
		}
	}

	var errs []error
	if onnxPath == "" {
		errs = append(errs, errors.New("model does not have a model.onnx file, the transformer embedder only works with onnx models"))
	}
	if tokenizerPath == "" {
		errs = append(errs, errors.New("model does not have a tokenizer.json file"))
	}

	files := append(toDownload, onnxPath, tokenizerPath)
	return files, errors.Join(errs...)
}
