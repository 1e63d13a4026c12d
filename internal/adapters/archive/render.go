package archive

import (
	"arboria/pkg/domain"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/xuri/excelize/v2"
)

var treeColumns = []string{"id", "farm_id", "position", "species", "variety", "plant_date", "health", "origin", "latitude", "longitude", "photos", "notes"}

func renderDocument(doc domain.Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

func treeRow(t domain.TreeRecord) []string {
	lat, lon := "", ""
	if t.GPS != nil {
		lat = strconv.FormatFloat(t.GPS.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(t.GPS.Longitude, 'f', -1, 64)
	}
	return []string{t.ID, t.FarmID, t.Position, t.Species, t.Variety, t.PlantDate, t.Health, t.Origin, lat, lon, strconv.Itoa(len(t.Photos)), t.Notes}
}

func renderCSV(doc domain.Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(treeColumns); err != nil {
		return nil, err
	}
	for _, t := range doc.Trees {
		if err := w.Write(treeRow(t)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TreesGeoJSON returns one point feature per geotagged tree in doc. Trees
// without coordinates are skipped.
func TreesGeoJSON(doc domain.Document) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range doc.Trees {
		if t.GPS == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{t.GPS.Longitude, t.GPS.Latitude})
		f.ID = t.ID
		f.Properties["farm_id"] = t.FarmID
		f.Properties["position"] = t.Position
		f.Properties["species"] = t.Species
		f.Properties["health"] = t.Health
		f.Properties["plant_date"] = t.PlantDate
		if t.Variety != "" {
			f.Properties["variety"] = t.Variety
		}
		fc.Append(f)
	}
	return fc
}

func renderGeoJSON(doc domain.Document) ([]byte, error) {
	return TreesGeoJSON(doc).MarshalJSON()
}

type sheet struct {
	name    string
	header  []string
	rows    [][]any
	dateCol string
}

func workbookSheets(doc domain.Document) []sheet {
	farms := sheet{name: "Farms", dateCol: "F", header: []string{"id", "name", "description", "grid_rows", "grid_cols", "created_at"}}
	for _, f := range doc.Farms {
		farms.rows = append(farms.rows, []any{f.ID, f.Name, f.Description, f.GridRows, f.GridCols, f.CreatedAt})
	}
	trees := sheet{name: "Trees", header: treeColumns}
	for _, t := range doc.Trees {
		row := treeRow(t)
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		trees.rows = append(trees.rows, cells)
	}
	interventions := sheet{name: "Interventions", dateCol: "D", header: []string{"id", "tree_id", "type", "date", "notes"}}
	for _, iv := range doc.Interventions {
		interventions.rows = append(interventions.rows, []any{iv.ID, iv.TreeID, iv.Type, iv.Date, iv.Notes})
	}
	return []sheet{farms, trees, interventions}
}

func renderWorkbook(doc domain.Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4E7D3A"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return nil, fmt.Errorf("date style: %w", err)
	}

	for i, sh := range workbookSheets(doc) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sh.name, "A1", &sh.header); err != nil {
			return nil, err
		}
		last, _ := excelize.CoordinatesToCellName(len(sh.header), 1)
		if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
			return nil, err
		}
		if err := f.SetPanes(sh.name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return nil, err
		}
		for r, row := range sh.rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return nil, err
			}
		}
		if sh.dateCol != "" && len(sh.rows) > 0 {
			end := fmt.Sprintf("%s%d", sh.dateCol, len(sh.rows)+1)
			if err := f.SetCellStyle(sh.name, sh.dateCol+"2", end, dateStyle); err != nil {
				return nil, err
			}
		}
		lastCol, _ := excelize.ColumnNumberToName(len(sh.header))
		if err := f.SetColWidth(sh.name, "A", lastCol, 18); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
