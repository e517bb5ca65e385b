package export

import (
	"fmt"
	"slices"
	"time"

	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/models"
)

// Mode selects one row per region or one row per record.
type Mode string

const (
	ModeRegion Mode = "region"
	ModeRecord Mode = "record"
)

// ParseMode defaults to ModeRegion for an empty string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRegion:
		return ModeRegion, nil
	case ModeRecord:
		return ModeRecord, nil
	}
	return "", fmt.Errorf("invalid mode %q", s)
}

// Query describes one export. An empty Regions list means every municipality.
type Query struct {
	Medication models.Medication
	Period     models.PeriodType
	Format     Format
	Mode       Mode
	Regions    []string
	Options    demand.ExportOptions
}

// File is an encoded export ready to download or publish.
type File struct {
	Name   string
	Format Format
	Mode   Mode
	Data   []byte
	Rows   int
}

// Build narrows records to the requested regions, builds the table for the
// query's mode and encodes it. records may span municipalities and periods.
func Build(q Query, municipalities []models.Municipality, records []models.Prediction, now time.Time) (*File, error) {
	regions := municipalities
	if len(q.Regions) > 0 {
		regions = PickRegions(municipalities, q.Regions)
		records = slices.DeleteFunc(slices.Clone(records), func(p models.Prediction) bool {
			return !slices.Contains(q.Regions, p.MunicipalityID)
		})
	}

	req := demand.ExportRequest{
		Medication: q.Medication,
		Period:     q.Period,
		Records:    records,
		Options:    q.Options,
	}
	var table demand.Table
	if q.Mode == ModeRecord {
		table = demand.BuildRecordTable(req, demand.RegionNames(municipalities))
	} else {
		table = demand.BuildTable(req, regions)
	}

	name := q.Medication.Name
	if name == "" {
		name = q.Medication.ID
	}
	data, err := Encode(table, q.Format, fmt.Sprintf("%s %s", name, q.Period))
	if err != nil {
		return nil, err
	}
	return &File{
		Name:   demand.Filename(name, q.Period, now, q.Format.Ext()),
		Format: q.Format,
		Mode:   q.Mode,
		Data:   data,
		Rows:   len(table.Rows),
	}, nil
}

// PickRegions returns the named municipalities in the order of ids.
// Unknown ids become regions named by their id.
func PickRegions(all []models.Municipality, ids []string) []models.Municipality {
	out := make([]models.Municipality, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(all, func(m models.Municipality) bool { return m.ID == id })
		if i < 0 {
			out = append(out, models.Municipality{ID: id})
			continue
		}
		out = append(out, all[i])
	}
	return out
}
