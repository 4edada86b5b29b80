package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus/expfmt"
	dto "github.com/prometheus/client_model/go"
)

// writeMetricFamilies renders metric families in the Prometheus text
// exposition format, for --metrics-file's textfile-collector output.
func writeMetricFamilies(w interface{ Write([]byte) (int, error) }, mfs []*dto.MetricFamily) error {
	writer, ok := w.(io.Writer)
	if !ok {
		return nil
	}
	enc := expfmt.NewEncoder(writer, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
