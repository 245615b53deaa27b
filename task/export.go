package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExportRecord is one entry of the dataset export file. The export carries
// more fields per artifact, but only the image tag is needed to drive the
// fetch loop.
type ExportRecord struct {
	ImageTag string `json:"image_tag"`
}

// LoadExport reads the export file and returns the image tags in file order,
// duplicates included. A missing or undecodable export file fails the whole
// run; it is the only fatal startup condition.
func LoadExport(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("export file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed reading export file: %s", err.Error())
	}

	var records []ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export file: %s", err.Error())
	}

	tags := make([]string, 0, len(records))
	for _, r := range records {
		tags = append(tags, r.ImageTag)
	}
	return tags, nil
}
