package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadASCII parses an ESRI ASCII grid (.asc)
func ReadASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	g := &Grid{NoData: DefaultNoData}
	var centerX, centerY bool
	var headerDone bool
	var pending string

	// header: key value pairs until the first numeric token
	for !headerDone && sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = key
			headerDone = true
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("ascii grid header: missing value for %s", key)
		}
		val := sc.Text()
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid header: bad value %q for %s", val, key)
		}
		switch key {
		case "ncols":
			g.Cols = int(f)
		case "nrows":
			g.Rows = int(f)
		case "xllcorner":
			g.XLL = f
		case "yllcorner":
			g.YLL = f
		case "xllcenter":
			g.XLL, centerX = f, true
		case "yllcenter":
			g.YLL, centerY = f, true
		case "cellsize":
			g.CellSize = f
		case "nodata_value":
			g.NoData = f
		default:
			return nil, fmt.Errorf("ascii grid header: unknown key %s", key)
		}
	}

	if g.Cols <= 0 || g.Rows <= 0 || g.CellSize <= 0 {
		return nil, fmt.Errorf("ascii grid header incomplete: ncols=%d nrows=%d cellsize=%v", g.Cols, g.Rows, g.CellSize)
	}
	if centerX {
		g.XLL -= g.CellSize / 2
	}
	if centerY {
		g.YLL -= g.CellSize / 2
	}

	g.Values = make([]float64, 0, g.Len())
	if pending != "" {
		v, _ := strconv.ParseFloat(pending, 64)
		g.Values = append(g.Values, v)
	}
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("ascii grid: bad cell value %q", sc.Text())
		}
		g.Values = append(g.Values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ascii grid: %w", err)
	}
	if len(g.Values) != g.Len() {
		return nil, fmt.Errorf("ascii grid: expected %d cells, got %d", g.Len(), len(g.Values))
	}
	return g, nil
}

// WriteASCII writes g as an ESRI ASCII grid
func WriteASCII(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\nNODATA_value %s\n",
		g.Cols, g.Rows, ftoa(g.XLL), ftoa(g.YLL), ftoa(g.CellSize), ftoa(g.NoData))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(ftoa(g.Values[g.Index(col, row)]))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
