package model

import (
	"fmt"
	"strings"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type Aspect string

const (
	AspectMethodology Aspect = "methodology"
	AspectDataset     Aspect = "dataset"
	AspectResults     Aspect = "results"
	AspectLimitations Aspect = "limitations"
)

var AllAspects = []Aspect{AspectMethodology, AspectDataset, AspectResults, AspectLimitations}

func ParseAspect(name string) (Aspect, error) {
	a := Aspect(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllAspects {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown aspect %q", appErr.ErrInvalid, name)
}

type AspectResult struct {
	Aspect      Aspect  `json:"aspect"`
	Paper1      string  `json:"paper1"`
	Paper2      string  `json:"paper2"`
	Differences string  `json:"differences"`
	RawText     string  `json:"raw_text"`
	Paper1Score float32 `json:"paper1_score"`
	Paper2Score float32 `json:"paper2_score"`
	Error       string  `json:"error,omitempty"`
}

type Comparison struct {
	Paper1ID   string                   `json:"paper1_id"`
	Paper1Name string                   `json:"paper1_name"`
	Paper2ID   string                   `json:"paper2_id"`
	Paper2Name string                   `json:"paper2_name"`
	Aspects    map[Aspect]*AspectResult `json:"aspects"`
}
