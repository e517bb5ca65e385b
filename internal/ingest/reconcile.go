package ingest

import (
	"github.com/lox/medcast/internal/models"
)

// DuplicateGroup lists the predictions discarded in favour of Kept.
type DuplicateGroup struct {
	Key       models.PredictionKey `json:"key"`
	Kept      models.Prediction    `json:"kept"`
	Discarded []models.Prediction  `json:"discarded"`
}

// Reconcile keeps one prediction per composite key: the one with the
// newest CreatedAt, or the first seen on a tie. Output preserves the
// order in which each key was first seen.
func Reconcile(preds []models.Prediction) ([]models.Prediction, []DuplicateGroup) {
	pos := make(map[models.PredictionKey]int, len(preds))
	out := make([]models.Prediction, 0, len(preds))
	discarded := make(map[models.PredictionKey][]models.Prediction)

	for _, p := range preds {
		key := p.Key()
		i, seen := pos[key]
		if !seen {
			pos[key] = len(out)
			out = append(out, p)
			continue
		}
		if p.CreatedAt.After(out[i].CreatedAt) {
			discarded[key] = append(discarded[key], out[i])
			out[i] = p
		} else {
			discarded[key] = append(discarded[key], p)
		}
	}

	var groups []DuplicateGroup
	for _, p := range out {
		if d, ok := discarded[p.Key()]; ok {
			groups = append(groups, DuplicateGroup{Key: p.Key(), Kept: p, Discarded: d})
		}
	}
	return out, groups
}
