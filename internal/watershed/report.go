package watershed

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/stats"
)

// Report summarises a run: counts by status, method and error kind, plus
// every point's outcome ordered by point id
type Report struct {
	RunID     string         `json:"run_id"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Fallback  int            `json:"fallback"`
	Unmatched int            `json:"unmatched"`
	Failed    int            `json:"failed"`
	ByMethod  map[string]int `json:"by_method"`
	ByKind    map[string]int `json:"by_error_kind"`
	// watershed areas in m² per refinement method, delineated points only
	AreaByMethod map[string]stats.Summary `json:"area_by_method"`
	Outcomes     []*models.PointOutcome   `json:"outcomes"`
}

// NewReport builds a report from outcomes
func NewReport(runID string, outcomes []*models.PointOutcome) *Report {
	r := &Report{
		RunID:    runID,
		Total:    len(outcomes),
		ByMethod: make(map[string]int),
		ByKind:   make(map[string]int),
		Outcomes: append([]*models.PointOutcome(nil), outcomes...),
	}
	sort.Slice(r.Outcomes, func(i, j int) bool { return r.Outcomes[i].PointID < r.Outcomes[j].PointID })

	areas := make(map[string][]float64)
	for _, o := range r.Outcomes {
		switch o.Status {
		case models.OutcomeSuccess:
			r.Succeeded++
		case models.OutcomeFallback:
			r.Fallback++
		case models.OutcomeUnmatched:
			r.Unmatched++
		default:
			r.Failed++
		}
		if o.Method != "" {
			r.ByMethod[o.Method]++
		}
		if o.ErrorKind != "" {
			r.ByKind[o.ErrorKind]++
		}
		if o.Area > 0 {
			areas[o.Method] = append(areas[o.Method], o.Area)
		}
	}

	r.AreaByMethod = make(map[string]stats.Summary, len(areas))
	for method, a := range areas {
		r.AreaByMethod[method] = stats.Summarise(a)
	}
	return r
}

// Log writes the summary, and one line per point that did not succeed
func (r *Report) Log(log logrus.FieldLogger) {
	fields := logrus.Fields{
		"total":     r.Total,
		"succeeded": r.Succeeded,
		"fallback":  r.Fallback,
		"unmatched": r.Unmatched,
		"failed":    r.Failed,
	}
	for k, n := range r.ByMethod {
		fields["method_"+strings.ToLower(k)] = n
	}
	for k, a := range r.AreaByMethod {
		fields["median_area_"+strings.ToLower(k)] = a.Median
	}
	log.WithFields(fields).Info("Run finished")
	if r.Unmatched > 0 {
		log.Warnf("%d points unmatched", r.Unmatched)
	}

	for _, o := range r.Outcomes {
		if o.Status == models.OutcomeSuccess {
			continue
		}
		log.WithFields(logrus.Fields{
			"point_id":   o.PointID,
			"status":     o.Status,
			"error_kind": o.ErrorKind,
		}).Warn(o.Message)
	}
}

// Write renders the report as a table
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s: %d points, %d succeeded, %d fallback, %d unmatched, %d failed\n\n",
		r.RunID, r.Total, r.Succeeded, r.Fallback, r.Unmatched, r.Failed)
	fmt.Fprintln(tw, "POINT\tSTATUS\tMETHOD\tSOURCES\tAREA HA\tERROR")
	for _, o := range r.Outcomes {
		errText := o.ErrorKind
		if o.Message != "" {
			errText += ": " + o.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n", o.PointID, o.Status, o.Method,
			strings.Join(o.Sources, ","), o.Area/10000, errText)
	}

	if len(r.AreaByMethod) > 0 {
		methods := make([]string, 0, len(r.AreaByMethod))
		for m := range r.AreaByMethod {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		fmt.Fprintln(tw, "\nMETHOD\tPOINTS\tMIN HA\tMEDIAN HA\tP90 HA\tMAX HA")
		for _, m := range methods {
			a := r.AreaByMethod[m]
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\n", m, a.Count,
				a.Min/10000, a.Median/10000, a.P90/10000, a.Max/10000)
		}
	}
	return tw.Flush()
}
