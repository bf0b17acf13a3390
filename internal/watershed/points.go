package watershed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
)

// ReadPoints reads input points from CSV with a header row naming at least
// id, x and y. An optional match_code column is carried through.
func ReadPoints(r io.Reader) ([]models.InputPoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read points header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"id", "x", "y"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("points header has no %q column", name)
		}
	}
	matchCol, hasMatch := col["match_code"]

	var pts []models.InputPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("points line %d: %w", line, err)
		}

		p := models.InputPoint{ID: rec[col["id"]]}
		if p.X, err = strconv.ParseFloat(rec[col["x"]], 64); err != nil {
			return nil, fmt.Errorf("points line %d: bad x: %w", line, err)
		}
		if p.Y, err = strconv.ParseFloat(rec[col["y"]], 64); err != nil {
			return nil, fmt.Errorf("points line %d: bad y: %w", line, err)
		}
		if hasMatch {
			p.MatchCode = rec[matchCol]
		}
		pts = append(pts, p)
	}
	return pts, nil
}
