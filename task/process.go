package task

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const commitTimeLayout = "2006-01-02T15:04:05Z"

// artifactDocument is the subset of the dataset's metadata document that the
// flattened CSV needs.
type artifactDocument struct {
	ImageTag  string `json:"image_tag"`
	Lang      string `json:"lang"`
	FailedJob struct {
		CommittedAt string `json:"committed_at"`
	} `json:"failed_job"`
	PassedJob struct {
		CommittedAt string `json:"committed_at"`
	} `json:"passed_job"`
	Classification struct {
		Exceptions []string `json:"exceptions"`
	} `json:"classification"`
}

var csvHeader = []string{
	"image_tag",
	"language",
	"failed_commit",
	"passed_commit",
	"time_to_fix_hours",
	"exceptions",
}

// ProcessMetadata flattens every metadata file under dir into one CSV row per
// artifact, written to outputCSV. Empty files and files holding error text
// instead of a metadata document are skipped, so a directory produced by a
// partially failed fetch run processes cleanly. Returns the number of rows
// written.
func ProcessMetadata(logger *zap.Logger, dir, outputCSV string) (int, error) {
	var rows [][]string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), "_metadata.json") {
			return nil
		}
		if row, ok := flattenMetadataFile(logger, path); ok {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed walking metadata directory: %s", err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(outputCSV), 0700); err != nil {
		return 0, fmt.Errorf("failed creating processed data directory: %s", err.Error())
	}
	f, err := os.Create(outputCSV)
	if err != nil {
		return 0, fmt.Errorf("failed creating csv file: %s", err.Error())
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("failed writing csv header: %s", err.Error())
	}
	if err := w.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("failed writing csv rows: %s", err.Error())
	}
	return len(rows), nil
}

func flattenMetadataFile(logger *zap.Logger, path string) ([]string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed reading metadata file, skipping",
			zap.String("file", path), zap.Error(err))
		return nil, false
	}
	if len(data) == 0 {
		logger.Warn("metadata file is empty, skipping", zap.String("file", path))
		return nil, false
	}

	var doc artifactDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Error("failed decoding metadata file, skipping",
			zap.String("file", path), zap.Error(err))
		return nil, false
	}

	return []string{
		doc.ImageTag,
		doc.Lang,
		doc.FailedJob.CommittedAt,
		doc.PassedJob.CommittedAt,
		timeToFixHours(doc.FailedJob.CommittedAt, doc.PassedJob.CommittedAt),
		strings.Join(doc.Classification.Exceptions, ";"),
	}, true
}

// timeToFixHours computes the hours between the failed and passed commit
// timestamps, or returns the empty string when either is missing or does not
// parse.
func timeToFixHours(failedAt, passedAt string) string {
	if failedAt == "" || passedAt == "" {
		return ""
	}
	failed, err := time.Parse(commitTimeLayout, failedAt)
	if err != nil {
		return ""
	}
	passed, err := time.Parse(commitTimeLayout, passedAt)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(passed.Sub(failed).Hours(), 'f', -1, 64)
}
